package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/config"
	"github.com/storelytics/tally/internal/migration"
	"github.com/storelytics/tally/internal/observability"
	"github.com/storelytics/tally/internal/reconcile"
	"github.com/storelytics/tally/internal/scheduler"
	"github.com/storelytics/tally/internal/source"
	"github.com/storelytics/tally/pkg/db"
	"go.uber.org/fx"
)

// Reconciler mode: drains the run queue and recomputes facts. It owns the
// derived tables, so migrations run here.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by the scheduler
		source.Module,
		reconcile.Module,

		scheduler.Module,
		migration.Module,
		// No server module!
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
