package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/revora/revora/internal/clock"
	"github.com/revora/revora/internal/config"
	"github.com/revora/revora/internal/migration"
	"github.com/revora/revora/internal/observability"
	"github.com/revora/revora/internal/scheduler"
	"github.com/revora/revora/internal/seed"
	"github.com/revora/revora/internal/server"
	"github.com/revora/revora/pkg/db"
	"go.uber.org/fx"
)

// The monolith: HTTP API plus the background sweeps in one process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
		seed.Module,
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
