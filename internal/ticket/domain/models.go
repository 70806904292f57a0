package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
)

type Status string

const (
	StatusTodo       Status = "TODO"
	StatusInProgress Status = "IN_PROGRESS"
	StatusInReview   Status = "IN_REVIEW"
	StatusDone       Status = "DONE"
)

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	default:
		return false
	}
}

var transitions = map[Status][]Status{
	StatusTodo:       {StatusInProgress},
	StatusInProgress: {StatusInReview},
	StatusInReview:   {StatusInProgress, StatusDone},
}

// CanTransition reports whether a ticket may move from one status to another.
// DONE is terminal.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// JobType prices a unit of work.
type JobType struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	TokenCost        int64        `gorm:"not null" json:"token_cost"`
	BasePayoutTokens int64        `gorm:"not null" json:"base_payout_tokens"`
	CreatedAt        time.Time    `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
}

func (JobType) TableName() string { return "job_types" }

type Ticket struct {
	ID                     snowflake.ID  `gorm:"primaryKey" json:"id"`
	CompanyID              snowflake.ID  `gorm:"not null;index" json:"company_id"`
	CreativeID             *snowflake.ID `gorm:"index:ix_tickets_creative_status,priority:1" json:"creative_id,omitempty"`
	JobTypeID              *snowflake.ID `json:"job_type_id,omitempty"`
	Title                  string        `gorm:"type:text;not null" json:"title"`
	Status                 Status        `gorm:"type:text;not null;index:ix_tickets_creative_status,priority:2" json:"status"`
	Quantity               int64         `gorm:"not null;default:1" json:"quantity"`
	TokenCostOverride      *int64        `json:"token_cost_override,omitempty"`
	CreativePayoutOverride *int64        `json:"creative_payout_override,omitempty"`
	CompletedAt            *time.Time    `json:"completed_at,omitempty"`
	CreatedAt              time.Time     `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt              time.Time     `gorm:"not null;autoUpdateTime:false;index:ix_tickets_creative_status,priority:3" json:"updated_at"`
}

func (Ticket) TableName() string { return "tickets" }

type PayoutSource string

const (
	PayoutSourceOverride PayoutSource = "override"
	PayoutSourceTier     PayoutSource = "tier"
	PayoutSourceBase     PayoutSource = "base"
)

// Payout is the creative earning computed at completion.
type Payout struct {
	Amount          int64
	Source          PayoutSource
	PayoutPercent   *int64
	MatchedRuleID   *snowflake.ID
	MatchedRuleName string
}

// Metadata is stored on the payout ledger entry.
func (p Payout) Metadata() map[string]any {
	md := map[string]any{
		"source":        string(p.Source),
		"override_used": p.Source == PayoutSourceOverride,
	}
	if p.PayoutPercent != nil {
		md["payout_percent"] = *p.PayoutPercent
	}
	if p.MatchedRuleID != nil {
		md["payout_rule_id"] = p.MatchedRuleID.String()
		md["payout_rule_name"] = p.MatchedRuleName
	}
	return md
}

type CompletionResult struct {
	Ticket           Ticket                    `json:"ticket"`
	PostedEntry      *ledgerdomain.LedgerEntry `json:"posted_entry"`
	AlreadyCompleted bool                      `json:"already_completed"`
}

type TransitionResult struct {
	Ticket     Ticket            `json:"ticket"`
	Completion *CompletionResult `json:"completion,omitempty"`
}

type CreateTicketRequest struct {
	CompanyID              snowflake.ID  `json:"company_id"`
	CreativeID             *snowflake.ID `json:"creative_id,omitempty"`
	JobTypeID              *snowflake.ID `json:"job_type_id,omitempty"`
	Title                  string        `json:"title"`
	Quantity               int64         `json:"quantity"`
	TokenCostOverride      *int64        `json:"token_cost_override,omitempty"`
	CreativePayoutOverride *int64        `json:"creative_payout_override,omitempty"`
}

type CreateResult struct {
	Ticket      Ticket                    `json:"ticket"`
	ChargeEntry *ledgerdomain.LedgerEntry `json:"charge_entry"`
}
