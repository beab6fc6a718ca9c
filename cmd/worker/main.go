package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"licenseplane/pkg/config"
	"licenseplane/pkg/db"
	"licenseplane/pkg/gen"
	"licenseplane/pkg/logger"
	"licenseplane/pkg/mailer"
	"licenseplane/pkg/objstore"
	"licenseplane/pkg/redis"
	"licenseplane/pkg/secretmanager"
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
		task.Client,
		task.Server,
		mailer.Module,
		objstore.Module,
		notify.Module,
		plan.Module,
		organization.Module,
		audit.Module,
		license.Module,
		usage.Module,
		notify.TaskModule,
		usage.TaskModule,
		fxLogger,
	)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
