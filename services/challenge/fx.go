package challenge

import "go.uber.org/fx"

var Module = fx.Module("challenge.service",
	fx.Provide(NewService),
)
