package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/leadex/leadex/internal/auction"
	"github.com/leadex/leadex/internal/batch"
	"github.com/leadex/leadex/internal/clock"
	"github.com/leadex/leadex/internal/config"
	"github.com/leadex/leadex/internal/events"
	"github.com/leadex/leadex/internal/ledger"
	"github.com/leadex/leadex/internal/logger"
	"github.com/leadex/leadex/internal/metrics"
	"github.com/leadex/leadex/internal/migration"
	"github.com/leadex/leadex/internal/ratelimit"
	"github.com/leadex/leadex/internal/server"
	"github.com/leadex/leadex/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		events.Module,
		ratelimit.Module,

		ledger.Module,
		auction.Module,
		batch.Module,

		migration.Module,
		server.Module,
	)
	app.Run()
}

func registerSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
