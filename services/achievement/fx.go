package achievement

import "go.uber.org/fx"

var Module = fx.Module("achievement.service",
	fx.Provide(NewService),
)
