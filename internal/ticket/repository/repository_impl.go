package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/ticket/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, ticket *domain.Ticket) error {
	return db.WithContext(ctx).Create(ticket).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).Where("id = ?", id).Take(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Ticket, error) {
	var ticket domain.Ticket
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, completedAt *time.Time, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tickets SET status = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
		status,
		completedAt,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateCreative(ctx context.Context, db *gorm.DB, id, creativeID snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tickets SET creative_id = ?, updated_at = ? WHERE id = ?`,
		creativeID,
		updatedAt,
		id,
	).Error
}

func (r *repo) FindJobType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.JobType, error) {
	var jobType domain.JobType
	err := db.WithContext(ctx).Where("id = ?", id).Take(&jobType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &jobType, nil
}
