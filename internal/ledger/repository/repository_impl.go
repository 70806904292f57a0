package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockCompany(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Company, error) {
	var company domain.Company
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&company).Error
	return orNil(&company, err)
}

func (r *repo) FindCompany(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Company, error) {
	var company domain.Company
	err := db.WithContext(ctx).Where("id = ?", id).Take(&company).Error
	return orNil(&company, err)
}

func (r *repo) LockCreative(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Creative, error) {
	var creative domain.Creative
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&creative).Error
	return orNil(&creative, err)
}

func (r *repo) FindCreative(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Creative, error) {
	var creative domain.Creative
	err := db.WithContext(ctx).Where("id = ?", id).Take(&creative).Error
	return orNil(&creative, err)
}

func (r *repo) UpdateCompanyBalance(ctx context.Context, db *gorm.DB, id snowflake.ID, balance int64, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE companies SET token_balance = ?, updated_at = ? WHERE id = ?`,
		balance,
		updatedAt,
		id,
	).Error
}

func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) SumByAccount(ctx context.Context, db *gorm.DB, account domain.Account) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(CASE WHEN direction = ? THEN amount ELSE -amount END), 0)
		 FROM ledger_entries
		 WHERE owner_kind = ? AND owner_id = ?`,
		domain.DirectionCredit,
		account.Kind,
		account.ID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) FindTicketPayout(ctx context.Context, db *gorm.DB, ticketID snowflake.ID) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("ticket_id = ? AND reason = ?", ticketID, domain.ReasonTicketPayout).
		Take(&entry).Error
	return orNil(&entry, err)
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.LedgerEntry, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("owner_kind = ? AND owner_id = ?", filter.Account.Kind, filter.Account.ID)

	if filter.BeforeID != nil {
		stmt = stmt.Where("id < ?", *filter.BeforeID)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at < ?", filter.To.UTC())
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var entries []*domain.LedgerEntry
	if err := stmt.Order("id desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListCompanyIDs(ctx context.Context, db *gorm.DB) ([]snowflake.ID, error) {
	var raw []int64
	err := db.WithContext(ctx).Raw(`SELECT id FROM companies ORDER BY id ASC`).Scan(&raw).Error
	if err != nil {
		return nil, err
	}
	ids := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, snowflake.ID(id))
	}
	return ids, nil
}

func orNil[T any](row *T, err error) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}
