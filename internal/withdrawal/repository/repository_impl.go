package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, w *domain.Withdrawal) error {
	return db.WithContext(ctx).Create(w).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := db.WithContext(ctx).Where("id = ?", id).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *repo) ListByCreative(ctx context.Context, db *gorm.DB, creativeID snowflake.ID) ([]domain.Withdrawal, error) {
	var items []domain.Withdrawal
	err := db.WithContext(ctx).
		Where("creative_id = ?", creativeID).
		Order("id desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, w *domain.Withdrawal) error {
	return db.WithContext(ctx).Exec(
		`UPDATE withdrawals
		 SET status = ?, note = ?, ledger_entry_id = ?, updated_at = ?, decided_at = ?, paid_at = ?
		 WHERE id = ?`,
		w.Status,
		w.Note,
		w.LedgerEntryID,
		w.UpdatedAt,
		w.DecidedAt,
		w.PaidAt,
		w.ID,
	).Error
}
