package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PayoutConfig carries tunables read from payout.yml.
type PayoutConfig struct {
	MinimumWithdrawalTokens int64 `mapstructure:"minimumWithdrawalTokens"`
	BasePayoutPercent       int64 `mapstructure:"basePayoutPercent"`
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		MinimumWithdrawalTokens: 100,
		BasePayoutPercent:       60,
	}
}

type PayoutConfigHolder struct {
	current atomic.Value // holds PayoutConfig
}

// NewStaticPayoutConfigHolder returns a holder that never reloads.
func NewStaticPayoutConfigHolder(cfg PayoutConfig) *PayoutConfigHolder {
	holder := &PayoutConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPayoutConfigHolder(cfg Config) (*PayoutConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("payout")
	v.SetConfigType("yml")
	if dir := strings.TrimSpace(cfg.ConfigDir); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("/etc/tokenledger")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TOKENLEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPayoutConfig()
	v.SetDefault("payout.minimumWithdrawalTokens", defaults.MinimumWithdrawalTokens)
	v.SetDefault("payout.basePayoutPercent", defaults.BasePayoutPercent)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	var loaded PayoutConfig
	if err := v.UnmarshalKey("payout", &loaded); err != nil {
		return nil, err
	}
	if err := validatePayoutConfig(loaded); err != nil {
		return nil, err
	}

	holder := NewStaticPayoutConfigHolder(loaded)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PayoutConfig
		if err := v.UnmarshalKey("payout", &updated); err != nil {
			log.Printf("[payout-config] reload failed: %v", err)
			return
		}
		if err := validatePayoutConfig(updated); err != nil {
			log.Printf("[payout-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[payout-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PayoutConfigHolder) Get() PayoutConfig {
	return h.current.Load().(PayoutConfig)
}

// MinimumWithdrawalTokens satisfies the withdrawal policy provider.
func (h *PayoutConfigHolder) MinimumWithdrawalTokens() int64 {
	return h.Get().MinimumWithdrawalTokens
}

func (h *PayoutConfigHolder) BasePayoutPercent() int64 {
	return h.Get().BasePayoutPercent
}

func validatePayoutConfig(cfg PayoutConfig) error {
	if cfg.MinimumWithdrawalTokens < 0 {
		return errors.New("payout.minimumWithdrawalTokens cannot be negative")
	}
	if cfg.BasePayoutPercent < 0 || cfg.BasePayoutPercent > 100 {
		return errors.New("payout.basePayoutPercent must be within 0..100")
	}
	return nil
}
