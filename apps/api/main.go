package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/storelytics/tally/internal/clock"
	"github.com/storelytics/tally/internal/observability"
	"github.com/storelytics/tally/internal/server"
	"github.com/storelytics/tally/pkg/db"
	"go.uber.org/fx"
)

// API mode: serves run control and the read endpoints, never drains the
// queue. Pair it with the reconciler app, which owns the derived schema.
func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
