package audit

import "go.uber.org/fx"

var Module = fx.Module("audit.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("audit.server",
	Module,
	fx.Invoke(registerRoutes),
)
