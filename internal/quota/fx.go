package quota

import (
	"github.com/revora/revora/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.enforcer",
	fx.Provide(service.NewEnforcer),
)
