package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, log *zap.Logger) error {
		if err := Migrate(conn); err != nil {
			return err
		}
		if cfg.Bootstrap.SeedPayoutRules {
			created, err := seed.EnsureDefaultPayoutRules(conn, node)
			if err != nil {
				return err
			}
			log.Info("payout rules seeded", zap.Int("created", created))
		}
		return nil
	}),
)
