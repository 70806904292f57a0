package reconcilejob

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/tokenledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("reconcilejob",
	fx.Provide(New),
	fx.Invoke(Register),
)

// Register starts the cron scheduler when a reconcile spec is configured.
func Register(lc fx.Lifecycle, cfg config.Config, job *Job, log *zap.Logger) error {
	if cfg.ReconcileCron == "" {
		log.Info("scheduled reconciliation disabled")
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := job.Schedule(ctx, c, cfg.ReconcileCron); err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.Start()
			log.Info("scheduled reconciliation started", zap.String("spec", cfg.ReconcileCron))
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-c.Stop().Done():
			case <-stopCtx.Done():
			}
			return nil
		},
	})
	return nil
}
