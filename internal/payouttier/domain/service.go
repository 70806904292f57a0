package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type UpsertRuleRequest struct {
	ID                  *snowflake.ID `json:"id,omitempty"`
	Name                string        `json:"name"`
	MinCompletedTickets int64         `json:"min_completed_tickets"`
	TimeWindowDays      int64         `json:"time_window_days"`
	PayoutPercent       int64         `json:"payout_percent"`
	IsActive            bool          `json:"is_active"`
}

type Repository interface {
	ListActive(ctx context.Context, db *gorm.DB) ([]PayoutRule, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]PayoutRule, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutRule, error)
	Save(ctx context.Context, db *gorm.DB, rule *PayoutRule) error
	CountCompletedSince(ctx context.Context, db *gorm.DB, creativeID snowflake.ID, since time.Time) (int64, error)
}

// Service evaluates tiers without writing anything; it is safe to call speculatively.
type Service interface {
	Evaluate(ctx context.Context, creativeID snowflake.ID) (Evaluation, error)
	EvaluateTx(ctx context.Context, tx *gorm.DB, creativeID snowflake.ID) (Evaluation, error)
	Progress(ctx context.Context, creativeID snowflake.ID) (Progress, error)
	ListRules(ctx context.Context) ([]PayoutRule, error)
	UpsertRule(ctx context.Context, req UpsertRuleRequest) (*PayoutRule, error)
}

var (
	ErrInvalidRuleName    = errors.New("invalid_rule_name")
	ErrInvalidRuleWindow  = errors.New("invalid_rule_window")
	ErrInvalidRuleMinimum = errors.New("invalid_rule_minimum")
	ErrInvalidRulePercent = errors.New("invalid_rule_percent")
	ErrRuleNotFound       = errors.New("rule_not_found")
)
