package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/migration"
	"github.com/storelytics/tally/internal/observability"
	"github.com/storelytics/tally/internal/scheduler"
	"github.com/storelytics/tally/internal/server"
	"github.com/storelytics/tally/pkg/db"
	"go.uber.org/fx"
)

// Monolith mode: one process serves the HTTP API and drains the run queue.
func main() {
	app := fx.New(
		// Core infrastructure. config.Module rides in with server.Module.
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,

		// Background reconciliation
		scheduler.Module,
		migration.Module,
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
