package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ticket *Ticket) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Ticket, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, completedAt *time.Time, updatedAt time.Time) error
	UpdateCreative(ctx context.Context, db *gorm.DB, id, creativeID snowflake.ID, updatedAt time.Time) error
	FindJobType(ctx context.Context, db *gorm.DB, id snowflake.ID) (*JobType, error)
}

// Locker is an optional cross-process guard around completion. The database
// check inside the completion transaction remains authoritative.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Service interface {
	// Complete is idempotent: repeated calls never post a second payout.
	Complete(ctx context.Context, ticketID snowflake.ID) (CompletionResult, error)
	// Transition moves a ticket along the workflow; moving to DONE completes it.
	Transition(ctx context.Context, ticketID snowflake.ID, to Status) (TransitionResult, error)
	Create(ctx context.Context, req CreateTicketRequest) (CreateResult, error)
	Assign(ctx context.Context, ticketID, creativeID snowflake.ID) (*Ticket, error)
	Get(ctx context.Context, ticketID snowflake.ID) (*Ticket, error)
}

var (
	ErrTicketNotFound       = errors.New("ticket_not_found")
	ErrJobTypeMissing       = errors.New("job_type_missing")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidTitle         = errors.New("invalid_title")
	ErrInvalidOverride      = errors.New("invalid_override")
	ErrCompanyNotFound      = errors.New("company_not_found")
	ErrCreativeNotFound     = errors.New("creative_not_found")
	ErrInsufficientBalance  = errors.New("insufficient_balance")
	ErrCompletionInProgress = errors.New("completion_in_progress")
)
