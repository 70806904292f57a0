package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"gorm.io/gorm"
)

//go:generate mockgen -destination=mock/balance_reader.go -package=mock_domain . BalanceReader

// BalanceReader resolves the live balance checked at request time.
type BalanceReader interface {
	BalanceOf(ctx context.Context, account ledgerdomain.Account) (int64, error)
}

// LedgerPoster posts the paid debit inside the withdrawal's transaction.
type LedgerPoster interface {
	PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostEntryRequest) (*ledgerdomain.LedgerEntry, error)
}

type PolicyProvider interface {
	MinimumWithdrawalTokens() int64
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, w *Withdrawal) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Withdrawal, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Withdrawal, error)
	ListByCreative(ctx context.Context, db *gorm.DB, creativeID snowflake.ID) ([]Withdrawal, error)
	Update(ctx context.Context, db *gorm.DB, w *Withdrawal) error
}

type Service interface {
	Request(ctx context.Context, creativeID snowflake.ID, amountTokens int64) (*Withdrawal, error)
	Cancel(ctx context.Context, id snowflake.ID) (*Withdrawal, error)
	Approve(ctx context.Context, id snowflake.ID) (*Withdrawal, error)
	Reject(ctx context.Context, id snowflake.ID, note string) (*Withdrawal, error)
	MarkPaid(ctx context.Context, id snowflake.ID) (*Withdrawal, error)
	Get(ctx context.Context, id snowflake.ID) (*Withdrawal, error)
	ListByCreative(ctx context.Context, creativeID snowflake.ID) ([]Withdrawal, error)
}

var (
	ErrBelowMinimum        = errors.New("below_minimum")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrInvalidState        = errors.New("invalid_state")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrNotFound            = errors.New("withdrawal_not_found")
	ErrCreativeNotFound    = errors.New("creative_not_found")
)
