package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OwnerKind identifies which side of the marketplace an account belongs to.
type OwnerKind string

const (
	OwnerKindCompany  OwnerKind = "company"
	OwnerKindCreative OwnerKind = "creative"
)

func (k OwnerKind) Valid() bool {
	return k == OwnerKindCompany || k == OwnerKindCreative
}

// Direction represents credit or debit postings.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func (d Direction) Valid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// Sign is +1 for credits and -1 for debits.
func (d Direction) Sign() int64 {
	if d == DirectionDebit {
		return -1
	}
	return 1
}

type Reason string

const (
	ReasonTicketPayout    Reason = "ticket_payout"    // creative earnings, completion only
	ReasonTicketCharge    Reason = "ticket_charge"    // company pays for a ticket at creation
	ReasonPlanPurchase    Reason = "plan_purchase"    // company buys tokens
	ReasonAdminAdjustment Reason = "admin_adjustment" // manual correction
	ReasonWithdrawal      Reason = "withdrawal"       // creative cash-out marked paid
)

// Reserved reasons are posted by their owning workflow and never by hand.
func (r Reason) Reserved() bool {
	switch r {
	case ReasonTicketPayout, ReasonTicketCharge, ReasonWithdrawal:
		return true
	default:
		return false
	}
}

// Account addresses a balance. It is not a stored row.
type Account struct {
	Kind OwnerKind    `json:"owner_kind"`
	ID   snowflake.ID `json:"owner_id"`
}

func CompanyAccount(id snowflake.ID) Account {
	return Account{Kind: OwnerKindCompany, ID: id}
}

func CreativeAccount(id snowflake.ID) Account {
	return Account{Kind: OwnerKindCreative, ID: id}
}

// Company carries the cached token balance kept in step with its entries.
type Company struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"type:text;not null" json:"name"`
	TokenBalance int64        `gorm:"not null;default:0" json:"token_balance"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

func (Company) TableName() string { return "companies" }

// Creative has no cached balance; it is always aggregated from entries.
type Creative struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Email     string       `gorm:"type:text" json:"email,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Creative) TableName() string { return "creatives" }

// LedgerEntry is immutable once written. Corrections are offsetting entries.
type LedgerEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	OwnerKind     OwnerKind         `gorm:"type:text;not null;index:ix_ledger_entries_owner,priority:1" json:"owner_kind"`
	OwnerID       snowflake.ID      `gorm:"not null;index:ix_ledger_entries_owner,priority:2" json:"owner_id"`
	Direction     Direction         `gorm:"type:text;not null" json:"direction"`
	Amount        int64             `gorm:"not null;check:chk_ledger_entries_amount_positive,amount > 0" json:"amount"`
	Reason        Reason            `gorm:"type:text;not null" json:"reason"`
	TicketID      *snowflake.ID     `gorm:"index" json:"ticket_id,omitempty"`
	BalanceBefore int64             `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64             `gorm:"not null" json:"balance_after"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;index:ix_ledger_entries_owner,priority:3" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Account returns the account the entry is addressed to.
func (e LedgerEntry) Account() Account {
	return Account{Kind: e.OwnerKind, ID: e.OwnerID}
}

// SignedAmount is the entry's contribution to its account balance.
func (e LedgerEntry) SignedAmount() int64 {
	return e.Direction.Sign() * e.Amount
}
