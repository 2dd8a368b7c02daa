package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/migration"
	"github.com/revora/revora/internal/observability"
	"github.com/revora/revora/internal/server"
	"github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
)

// API-only deployable. The sweeps run in the scheduler app; lazy resets
// on the consume path still apply here.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
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
