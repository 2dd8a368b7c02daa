package usage

import (
	"github.com/revora/revora/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.ledger",
	fx.Provide(service.NewLedger),
)
