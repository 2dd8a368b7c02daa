package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/catalog"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/directory"
	"github.com/revora/revora/internal/events"
	"github.com/revora/revora/internal/invoice"
	"github.com/revora/revora/internal/migration"
	"github.com/revora/revora/internal/observability"
	"github.com/revora/revora/internal/reset"
	"github.com/revora/revora/internal/scheduler"
	"github.com/revora/revora/internal/tax"
	"github.com/revora/revora/internal/usage"
	"github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
)

// Sweep-only deployable: quota reset and overdue invoice sweeps without
// the HTTP surface.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		catalog.Module,
		directory.Module,
		usage.Module,
		reset.Module,
		tax.Module,
		events.Module,
		invoice.Module,

		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
