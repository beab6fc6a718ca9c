package usage

import "go.uber.org/fx"

var Module = fx.Module("usage.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("usage.server",
	Module,
	fx.Invoke(registerRoutes),
)
