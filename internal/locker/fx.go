package locker

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tokenledger/internal/config"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("locker",
	fx.Provide(NewClient),
	fx.Provide(func(client *redis.Client) ticketdomain.Locker {
		if client == nil {
			return nil
		}
		return New(client)
	}),
)

// NewClient returns nil when the completion lock is disabled.
func NewClient(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*redis.Client, error) {
	if !cfg.Redis.Enabled {
		log.Info("completion lock disabled")
		return nil, nil
	}

	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required when the completion lock is enabled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis unreachable, completion lock will fail open", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}
