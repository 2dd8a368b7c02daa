package reset

import "go.uber.org/fx"

var Module = fx.Module("reset.sweeper",
	fx.Provide(NewSweeper),
)
