package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type PostEntryRequest struct {
	Account   Account
	Direction Direction
	Amount    int64
	Reason    Reason
	TicketID  *snowflake.ID
	Metadata  map[string]any

	// RequireSufficientBalance rejects debits that would take the account below zero.
	RequireSufficientBalance bool
}

type ReconcileResult struct {
	CompanyID snowflake.ID `json:"company_id"`
	Previous  int64        `json:"previous_balance"`
	Balance   int64        `json:"balance"`
	Drift     int64        `json:"drift"`
}

type ListEntriesRequest struct {
	pagination.Pagination
	Account Account
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

type Service interface {
	Post(ctx context.Context, req PostEntryRequest) (*LedgerEntry, error)
	// PostTx posts inside a transaction owned by the caller.
	PostTx(ctx context.Context, tx *gorm.DB, req PostEntryRequest) (*LedgerEntry, error)

	BalanceOf(ctx context.Context, account Account) (int64, error)
	BalanceOfTx(ctx context.Context, tx *gorm.DB, account Account) (int64, error)
	JournalBalance(ctx context.Context, account Account) (int64, error)
	Reconcile(ctx context.Context, companyID snowflake.ID) (ReconcileResult, error)

	ListEntries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	EntriesBetween(ctx context.Context, account Account, from, to time.Time) ([]LedgerEntry, error)
	ListCompanyIDs(ctx context.Context) ([]snowflake.ID, error)
	FindTicketPayoutTx(ctx context.Context, tx *gorm.DB, ticketID snowflake.ID) (*LedgerEntry, error)

	FindCreative(ctx context.Context, id snowflake.ID) (*Creative, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidOwner        = errors.New("invalid_owner")
	ErrInvalidDirection    = errors.New("invalid_direction")
	ErrInvalidReason       = errors.New("invalid_reason")
	ErrReservedReason      = errors.New("reserved_reason")
	ErrAccountNotFound     = errors.New("account_not_found")
	ErrDuplicatePayout     = errors.New("duplicate_payout")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidPeriod       = errors.New("invalid_period")
)
