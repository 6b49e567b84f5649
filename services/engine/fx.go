package engine

import "go.uber.org/fx"

var Module = fx.Module("engine.service",
	fx.Provide(NewService),
)

// Tasks wires the background sweeps; it needs the asynq server and
// scheduler modules alongside.
var Tasks = fx.Module("engine.tasks",
	fx.Provide(NewTaskHandler),
	fx.Invoke(RegisterHandlers),
	fx.Invoke(RegisterSchedules),
)
