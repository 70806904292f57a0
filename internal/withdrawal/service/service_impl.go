package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	Balances   domain.BalanceReader
	Ledger     domain.LedgerPoster
	Policy     domain.PolicyProvider
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	balances   domain.BalanceReader
	ledger     domain.LedgerPoster
	policy     domain.PolicyProvider
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("withdrawal.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		balances:   p.Balances,
		ledger:     p.Ledger,
		policy:     p.Policy,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Request records a PENDING withdrawal after checking the minimum and the
// creative's live balance. Pending requests do not reserve tokens.
func (s *Service) Request(ctx context.Context, creativeID snowflake.ID, amountTokens int64) (*domain.Withdrawal, error) {
	if amountTokens < s.policy.MinimumWithdrawalTokens() {
		return nil, domain.ErrBelowMinimum
	}
	if amountTokens <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	balance, err := s.balances.BalanceOf(ctx, ledgerdomain.CreativeAccount(creativeID))
	if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
		return nil, domain.ErrCreativeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve creative balance: %w", err)
	}
	if amountTokens > balance {
		return nil, domain.ErrInsufficientBalance
	}

	now := s.clock.Now()
	w := &domain.Withdrawal{
		ID:           s.genID.Generate(),
		Reference:    ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		CreativeID:   creativeID,
		AmountTokens: amountTokens,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, w); err != nil {
			return fmt.Errorf("insert withdrawal: %w", err)
		}
		s.audit(ctx, tx, "withdrawal.requested", w)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordWithdrawal(ctx, "requested")
	return w, nil
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, "cancelled", func(tx *gorm.DB, w *domain.Withdrawal) error {
		if w.Status != domain.StatusPending {
			return domain.ErrInvalidState
		}
		now := s.clock.Now()
		w.Status = domain.StatusCancelled
		w.DecidedAt = &now
		return nil
	})
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, "approved", func(tx *gorm.DB, w *domain.Withdrawal) error {
		if w.Status != domain.StatusPending {
			return domain.ErrInvalidState
		}
		now := s.clock.Now()
		w.Status = domain.StatusApproved
		w.DecidedAt = &now
		return nil
	})
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, note string) (*domain.Withdrawal, error) {
	return s.transition(ctx, id, "rejected", func(tx *gorm.DB, w *domain.Withdrawal) error {
		if w.Status != domain.StatusPending && w.Status != domain.StatusApproved {
			return domain.ErrInvalidState
		}
		now := s.clock.Now()
		w.Status = domain.StatusRejected
		w.Note = strings.TrimSpace(note)
		w.DecidedAt = &now
		return nil
	})
}

// MarkPaid debits the creative through the ledger in the same transaction
// that flips the withdrawal to PAID. The balance is re-checked at this point.
func (s *Service) MarkPaid(ctx context.Context, id snowflake.ID) (*domain.Withdrawal, error) {
	var entry *ledgerdomain.LedgerEntry
	w, err := s.transition(ctx, id, "paid", func(tx *gorm.DB, w *domain.Withdrawal) error {
		if w.Status != domain.StatusApproved {
			return domain.ErrInvalidState
		}

		posted, err := s.ledger.PostTx(ctx, tx, ledgerdomain.PostEntryRequest{
			Account:   ledgerdomain.CreativeAccount(w.CreativeID),
			Direction: ledgerdomain.DirectionDebit,
			Amount:    w.AmountTokens,
			Reason:    ledgerdomain.ReasonWithdrawal,
			Metadata: map[string]any{
				"withdrawal_id": w.ID.String(),
				"reference":     w.Reference,
			},
			RequireSufficientBalance: true,
		})
		switch {
		case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
			return domain.ErrInsufficientBalance
		case errors.Is(err, ledgerdomain.ErrAccountNotFound):
			return domain.ErrCreativeNotFound
		case err != nil:
			return err
		}

		now := s.clock.Now()
		w.Status = domain.StatusPaid
		w.LedgerEntryID = &posted.ID
		w.PaidAt = &now
		entry = posted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.OwnerKind), string(entry.Direction), string(entry.Reason), entry.Amount)
	return w, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Withdrawal, error) {
	w, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrNotFound
	}
	return w, nil
}

func (s *Service) ListByCreative(ctx context.Context, creativeID snowflake.ID) ([]domain.Withdrawal, error) {
	return s.repo.ListByCreative(ctx, s.db, creativeID)
}

// transition locks the withdrawal, lets apply mutate it and persists the result.
func (s *Service) transition(ctx context.Context, id snowflake.ID, name string, apply func(tx *gorm.DB, w *domain.Withdrawal) error) (*domain.Withdrawal, error) {
	var result *domain.Withdrawal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		w, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("lock withdrawal: %w", err)
		}
		if w == nil {
			return domain.ErrNotFound
		}

		if err := apply(tx, w); err != nil {
			return err
		}
		w.UpdatedAt = s.clock.Now()
		if err := s.repo.Update(ctx, tx, w); err != nil {
			return fmt.Errorf("update withdrawal: %w", err)
		}

		s.audit(ctx, tx, "withdrawal."+name, w)
		result = w
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordWithdrawal(ctx, name)
	return result, nil
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, w *domain.Withdrawal) {
	if s.auditSvc == nil {
		return
	}
	md := map[string]any{
		"creative_id":   w.CreativeID.String(),
		"amount_tokens": w.AmountTokens,
		"status":        string(w.Status),
		"reference":     w.Reference,
	}
	if err := s.auditSvc.AuditLogTx(ctx, tx, action, "withdrawal", w.ID.String(), md); err != nil {
		s.log.Warn("failed to write withdrawal audit log", zap.String("action", action), zap.Error(err))
	}
}
