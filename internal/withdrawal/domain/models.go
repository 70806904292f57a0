package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Withdrawal is a creative's request to cash out tokens. Nothing is posted to
// the ledger until it is marked paid.
type Withdrawal struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	Reference     string        `gorm:"type:text;not null;uniqueIndex" json:"reference"`
	CreativeID    snowflake.ID  `gorm:"not null;index" json:"creative_id"`
	AmountTokens  int64         `gorm:"not null" json:"amount_tokens"`
	Status        Status        `gorm:"type:text;not null;index" json:"status"`
	Note          string        `gorm:"type:text" json:"note,omitempty"`
	LedgerEntryID *snowflake.ID `json:"ledger_entry_id,omitempty"`
	CreatedAt     time.Time     `gorm:"not null;autoCreateTime:false" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	DecidedAt     *time.Time    `json:"decided_at,omitempty"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
}

func (Withdrawal) TableName() string { return "withdrawals" }
