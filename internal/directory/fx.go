package directory

import (
	"github.com/revora/revora/internal/directory/service"
	"go.uber.org/fx"
)

var Module = fx.Module("directory.service",
	fx.Provide(service.NewService),
)
