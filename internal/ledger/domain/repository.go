package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	Account  Account
	BeforeID *snowflake.ID
	From     *time.Time
	To       *time.Time
	Limit    int
}

// Repository methods return (nil, nil) when a row does not exist.
type Repository interface {
	LockCompany(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	FindCompany(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Company, error)
	LockCreative(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Creative, error)
	FindCreative(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Creative, error)
	UpdateCompanyBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance int64, updatedAt time.Time) error

	InsertEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	SumByAccount(ctx context.Context, db *gorm.DB, account Account) (int64, error)
	FindTicketPayout(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (*LedgerEntry, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*LedgerEntry, error)
	ListCompanyIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error)
}
