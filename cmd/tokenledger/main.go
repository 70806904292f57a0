package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/audit"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/ledger"
	"github.com/smallbiznis/tokenledger/internal/locker"
	"github.com/smallbiznis/tokenledger/internal/migration"
	"github.com/smallbiznis/tokenledger/internal/observability"
	"github.com/smallbiznis/tokenledger/internal/payouttier"
	"github.com/smallbiznis/tokenledger/internal/reconcilejob"
	"github.com/smallbiznis/tokenledger/internal/server"
	"github.com/smallbiznis/tokenledger/internal/statement"
	"github.com/smallbiznis/tokenledger/internal/ticket"
	"github.com/smallbiznis/tokenledger/internal/withdrawal"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		locker.Module,

		// Ledger domain
		audit.Module,
		authorization.Module,
		ledger.Module,
		payouttier.Module,
		ticket.Module,
		withdrawal.Module,
		statement.Module,

		// Outer surfaces
		reconcilejob.Module,
		server.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
