package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/voxbill/voxbill/internal/clock"
	"github.com/voxbill/voxbill/internal/config"
	"github.com/voxbill/voxbill/internal/logger"
	"github.com/voxbill/voxbill/internal/migration"
	"github.com/voxbill/voxbill/internal/server"
	"github.com/voxbill/voxbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// server.Module pulls in the ledger, call, credit, purchase,
		// usage, and notify domains and starts the sweeper loop.
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
