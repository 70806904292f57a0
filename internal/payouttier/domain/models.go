package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BasePayoutPercent applies when no active rule is met.
const BasePayoutPercent int64 = 60

// PayoutRule grants PayoutPercent to creatives who completed at least
// MinCompletedTickets tickets within the trailing TimeWindowDays.
type PayoutRule struct {
	ID                  snowflake.ID `gorm:"primaryKey" json:"id"`
	Name                string       `gorm:"type:text;not null" json:"name"`
	MinCompletedTickets int64        `gorm:"not null" json:"min_completed_tickets"`
	TimeWindowDays      int64        `gorm:"not null" json:"time_window_days"`
	PayoutPercent       int64        `gorm:"not null;index" json:"payout_percent"`
	IsActive            bool         `gorm:"not null" json:"is_active"`
	CreatedAt           time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time    `gorm:"not null" json:"updated_at"`
}

func (PayoutRule) TableName() string { return "payout_rules" }

type Evaluation struct {
	PayoutPercent     int64         `json:"payout_percent"`
	MatchedRuleID     *snowflake.ID `json:"matched_rule_id,omitempty"`
	MatchedRuleName   string        `json:"matched_rule_name,omitempty"`
	CompletedInWindow int64         `json:"completed_in_window"`
}

// Matched reports whether a rule, rather than the base rate, produced the percent.
func (e Evaluation) Matched() bool {
	return e.MatchedRuleID != nil
}

type NextTier struct {
	RuleID              snowflake.ID `json:"rule_id"`
	RuleName            string       `json:"rule_name"`
	PayoutPercent       int64        `json:"payout_percent"`
	MinCompletedTickets int64        `json:"min_completed_tickets"`
	TimeWindowDays      int64        `json:"time_window_days"`
	CompletedInWindow   int64        `json:"completed_in_window"`
	Remaining           int64        `json:"remaining"`
}

type Progress struct {
	Current Evaluation `json:"current"`
	Next    *NextTier  `json:"next,omitempty"`
}
