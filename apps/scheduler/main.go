package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/revshare/internal/authorization"
	"github.com/smallbiznis/revshare/internal/clock"
	"github.com/smallbiznis/revshare/internal/config"
	"github.com/smallbiznis/revshare/internal/observability"
	"github.com/smallbiznis/revshare/internal/scheduler"
	"github.com/smallbiznis/revshare/internal/server"
	"github.com/smallbiznis/revshare/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// Domain services required by scheduler
		server.DomainModule,
		authorization.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// The api process generates on node 1.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
