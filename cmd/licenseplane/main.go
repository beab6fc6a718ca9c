package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licenseplane/pkg/config"
	"licenseplane/pkg/db"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/health"
	"licenseplane/pkg/logger"
	"licenseplane/pkg/otelcol"
	"licenseplane/pkg/otelcol/exporters"
	"licenseplane/pkg/profiling"
	"licenseplane/pkg/redis"
	"licenseplane/pkg/secretmanager"
	"licenseplane/pkg/server"
	"licenseplane/pkg/task"
	"licenseplane/services/audit"
	"licenseplane/services/license"
	"licenseplane/services/notify"
	"licenseplane/services/organization"
	"licenseplane/services/plan"
	"licenseplane/services/usage"
)

func main() {
	app := fx.New(
		secretmanager.Module,
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redis.Module,
		fx.Provide(exporters.ProvideGrpc),
		otelcol.Module,
		profiling.Module,
		task.Client,
		notify.Module,
		plan.Module,
		organization.ServerModule,
		license.ServerModule,
		usage.ServerModule,
		audit.ServerModule,
		health.Module,
		server.Module,
		fx.Invoke(db.Otel, db.Metric),
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
