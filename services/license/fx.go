package license

import "go.uber.org/fx"

var Module = fx.Module("license.module",
	fx.Provide(NewService),
)

var ServerModule = fx.Module("license.server",
	Module,
	fx.Invoke(registerRoutes),
)
