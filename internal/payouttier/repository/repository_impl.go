package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"gorm.io/gorm"
)

// statusDone mirrors the ticket package's DONE value; importing it would cycle.
const statusDone = "DONE"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.PayoutRule, error) {
	var rules []domain.PayoutRule
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("payout_percent desc, id asc").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]domain.PayoutRule, error) {
	var rules []domain.PayoutRule
	if err := db.WithContext(ctx).Order("payout_percent desc, id asc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PayoutRule, error) {
	var rule domain.PayoutRule
	err := db.WithContext(ctx).Where("id = ?", id).Take(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, rule *domain.PayoutRule) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *repo) CountCompletedSince(ctx context.Context, db *gorm.DB, creativeID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM tickets
		 WHERE creative_id = ? AND status = ? AND updated_at >= ?`,
		creativeID,
		statusDone,
		since.UTC(),
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
