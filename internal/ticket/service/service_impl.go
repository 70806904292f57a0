package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"github.com/smallbiznis/tokenledger/internal/ticket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultCompletionLockTTL = 30 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	LedgerSvc  ledgerdomain.Service
	TierSvc    payouttierdomain.Service
	AuditSvc   auditdomain.Service `optional:"true"`
	Locker     domain.Locker       `optional:"true"`
	Cfg        config.Config       `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	ledgerSvc  ledgerdomain.Service
	tierSvc    payouttierdomain.Service
	auditSvc   auditdomain.Service
	locker     domain.Locker
	lockTTL    time.Duration
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	lockTTL := defaultCompletionLockTTL
	if p.Cfg.Redis.CompletionLockTTLSeconds > 0 {
		lockTTL = time.Duration(p.Cfg.Redis.CompletionLockTTLSeconds) * time.Second
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ticket.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		ledgerSvc:  p.LedgerSvc,
		tierSvc:    p.TierSvc,
		auditSvc:   p.AuditSvc,
		locker:     p.Locker,
		lockTTL:    lockTTL,
		obsMetrics: p.ObsMetrics,
	}
}

// Complete prices the ticket, credits the assigned creative once and marks
// the ticket DONE, all in one transaction. The ticket row lock plus the
// payout lookup make a repeated call observe the first one's result.
func (s *Service) Complete(ctx context.Context, ticketID snowflake.ID) (domain.CompletionResult, error) {
	return s.complete(ctx, ticketID, false)
}

// complete runs the completion. With fromReview set the locked ticket must
// still be IN_REVIEW, so a concurrent move back out of review wins.
func (s *Service) complete(ctx context.Context, ticketID snowflake.ID, fromReview bool) (domain.CompletionResult, error) {
	release, err := s.acquire(ctx, ticketID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	defer release()

	var result domain.CompletionResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, jobType, err := s.loadForCompletion(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		if ticket.Status == domain.StatusDone {
			result = domain.CompletionResult{Ticket: *ticket, AlreadyCompleted: true}
			return nil
		}
		if fromReview && !domain.CanTransition(ticket.Status, domain.StatusDone) {
			return domain.ErrInvalidTransition
		}
		existing, err := s.ledgerSvc.FindTicketPayoutTx(ctx, tx, ticket.ID)
		if err != nil {
			return fmt.Errorf("find ticket payout: %w", err)
		}
		if existing != nil {
			result = domain.CompletionResult{Ticket: *ticket, AlreadyCompleted: true}
			return nil
		}

		var evaluation *payouttierdomain.Evaluation
		if ticket.CreativePayoutOverride == nil && ticket.CreativeID != nil {
			eval, err := s.tierSvc.EvaluateTx(ctx, tx, *ticket.CreativeID)
			if err != nil {
				return fmt.Errorf("evaluate payout tier: %w", err)
			}
			evaluation = &eval
		}
		payout, err := domain.PayoutFor(*ticket, *jobType, evaluation)
		if err != nil {
			return err
		}

		var entry *ledgerdomain.LedgerEntry
		if payout.Amount > 0 && ticket.CreativeID != nil {
			entry, err = s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostEntryRequest{
				Account:   ledgerdomain.CreativeAccount(*ticket.CreativeID),
				Direction: ledgerdomain.DirectionCredit,
				Amount:    payout.Amount,
				Reason:    ledgerdomain.ReasonTicketPayout,
				TicketID:  &ticket.ID,
				Metadata:  payout.Metadata(),
			})
			if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
				return domain.ErrCreativeNotFound
			}
			if err != nil {
				return err
			}
		}

		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, ticket.ID, domain.StatusDone, &now, now); err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}
		ticket.Status = domain.StatusDone
		ticket.CompletedAt = &now
		ticket.UpdatedAt = now

		md := payout.Metadata()
		md["payout_amount"] = payout.Amount
		s.audit(ctx, tx, "ticket.completed", ticket.ID, md)

		result = domain.CompletionResult{Ticket: *ticket, PostedEntry: entry}
		return nil
	})
	if errors.Is(err, ledgerdomain.ErrDuplicatePayout) {
		// A concurrent completion won the unique index race.
		ticket, getErr := s.Get(ctx, ticketID)
		if getErr != nil {
			return domain.CompletionResult{}, getErr
		}
		result, err = domain.CompletionResult{Ticket: *ticket, AlreadyCompleted: true}, nil
	}
	if err != nil {
		return domain.CompletionResult{}, err
	}

	switch {
	case result.AlreadyCompleted:
		s.obsMetrics.RecordTicketCompletion(ctx, "replayed")
	case result.PostedEntry != nil:
		s.obsMetrics.RecordTicketCompletion(ctx, "paid")
		s.obsMetrics.RecordLedgerEntry(ctx, string(result.PostedEntry.OwnerKind), string(result.PostedEntry.Direction), string(result.PostedEntry.Reason), result.PostedEntry.Amount)
	default:
		s.obsMetrics.RecordTicketCompletion(ctx, "unpaid")
	}
	return result, nil
}

func (s *Service) Transition(ctx context.Context, ticketID snowflake.ID, to domain.Status) (domain.TransitionResult, error) {
	to = domain.Status(strings.ToUpper(strings.TrimSpace(string(to))))
	if !to.Valid() {
		return domain.TransitionResult{}, domain.ErrInvalidStatus
	}

	if to == domain.StatusDone {
		completion, err := s.complete(ctx, ticketID, true)
		if err != nil {
			return domain.TransitionResult{}, err
		}
		return domain.TransitionResult{Ticket: completion.Ticket, Completion: &completion}, nil
	}

	var result domain.TransitionResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := s.repo.FindByIDForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket == nil {
			return domain.ErrTicketNotFound
		}
		if ticket.Status == to {
			result.Ticket = *ticket
			return nil
		}
		if !domain.CanTransition(ticket.Status, to) {
			return domain.ErrInvalidTransition
		}

		from := ticket.Status
		now := s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, ticket.ID, to, nil, now); err != nil {
			return fmt.Errorf("update ticket status: %w", err)
		}
		ticket.Status = to
		ticket.UpdatedAt = now

		s.audit(ctx, tx, "ticket.status_changed", ticket.ID, map[string]any{
			"from": string(from),
			"to":   string(to),
		})
		result.Ticket = *ticket
		return nil
	})
	if err != nil {
		return domain.TransitionResult{}, err
	}
	return result, nil
}

// Create inserts a TODO ticket and charges the company for it in the same
// transaction. Completion never charges the company again.
func (s *Service) Create(ctx context.Context, req domain.CreateTicketRequest) (domain.CreateResult, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return domain.CreateResult{}, domain.ErrInvalidTitle
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 || quantity > domain.MaxQuantity {
		return domain.CreateResult{}, domain.ErrInvalidQuantity
	}
	if isNegative(req.TokenCostOverride) || isNegative(req.CreativePayoutOverride) {
		return domain.CreateResult{}, domain.ErrInvalidOverride
	}
	if req.CreativeID != nil {
		if err := s.ensureCreative(ctx, *req.CreativeID); err != nil {
			return domain.CreateResult{}, err
		}
	}

	now := s.clock.Now()
	ticket := domain.Ticket{
		ID:                     s.genID.Generate(),
		CompanyID:              req.CompanyID,
		CreativeID:             req.CreativeID,
		JobTypeID:              req.JobTypeID,
		Title:                  title,
		Status:                 domain.StatusTodo,
		Quantity:               quantity,
		TokenCostOverride:      req.TokenCostOverride,
		CreativePayoutOverride: req.CreativePayoutOverride,
		CreatedAt:              now,
		UpdatedAt:              now,
	}

	var result domain.CreateResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jobType *domain.JobType
		if ticket.JobTypeID != nil {
			found, err := s.repo.FindJobType(ctx, tx, *ticket.JobTypeID)
			if err != nil {
				return err
			}
			if found == nil {
				return domain.ErrJobTypeMissing
			}
			jobType = found
		}

		charge, err := domain.ChargeFor(ticket, jobType)
		if err != nil {
			return err
		}

		if err := s.repo.Insert(ctx, tx, &ticket); err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}

		var entry *ledgerdomain.LedgerEntry
		if charge > 0 {
			entry, err = s.ledgerSvc.PostTx(ctx, tx, ledgerdomain.PostEntryRequest{
				Account:                  ledgerdomain.CompanyAccount(ticket.CompanyID),
				Direction:                ledgerdomain.DirectionDebit,
				Amount:                   charge,
				Reason:                   ledgerdomain.ReasonTicketCharge,
				TicketID:                 &ticket.ID,
				Metadata:                 map[string]any{"quantity": ticket.Quantity, "override_used": ticket.TokenCostOverride != nil},
				RequireSufficientBalance: true,
			})
		} else {
			_, err = s.ledgerSvc.BalanceOfTx(ctx, tx, ledgerdomain.CompanyAccount(ticket.CompanyID))
		}
		switch {
		case errors.Is(err, ledgerdomain.ErrAccountNotFound):
			return domain.ErrCompanyNotFound
		case errors.Is(err, ledgerdomain.ErrInsufficientBalance):
			return domain.ErrInsufficientBalance
		case err != nil:
			return err
		}

		s.audit(ctx, tx, "ticket.created", ticket.ID, map[string]any{
			"company_id": ticket.CompanyID.String(),
			"charge":     charge,
		})
		result = domain.CreateResult{Ticket: ticket, ChargeEntry: entry}
		return nil
	})
	if err != nil {
		return domain.CreateResult{}, err
	}

	if result.ChargeEntry != nil {
		e := result.ChargeEntry
		s.obsMetrics.RecordLedgerEntry(ctx, string(e.OwnerKind), string(e.Direction), string(e.Reason), e.Amount)
	}
	return result, nil
}

func (s *Service) Assign(ctx context.Context, ticketID, creativeID snowflake.ID) (*domain.Ticket, error) {
	if err := s.ensureCreative(ctx, creativeID); err != nil {
		return nil, err
	}

	var result *domain.Ticket
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ticket, err := s.repo.FindByIDForUpdate(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if ticket == nil {
			return domain.ErrTicketNotFound
		}
		if ticket.Status == domain.StatusDone {
			return domain.ErrInvalidTransition
		}

		now := s.clock.Now()
		if err := s.repo.UpdateCreative(ctx, tx, ticket.ID, creativeID, now); err != nil {
			return fmt.Errorf("assign creative: %w", err)
		}
		ticket.CreativeID = &creativeID
		ticket.UpdatedAt = now

		s.audit(ctx, tx, "ticket.assigned", ticket.ID, map[string]any{"creative_id": creativeID.String()})
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, ticketID snowflake.ID) (*domain.Ticket, error) {
	ticket, err := s.repo.FindByID(ctx, s.db, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, domain.ErrTicketNotFound
	}
	return ticket, nil
}

func (s *Service) loadForCompletion(ctx context.Context, tx *gorm.DB, ticketID snowflake.ID) (*domain.Ticket, *domain.JobType, error) {
	ticket, err := s.repo.FindByIDForUpdate(ctx, tx, ticketID)
	if err != nil {
		return nil, nil, fmt.Errorf("lock ticket: %w", err)
	}
	if ticket == nil {
		return nil, nil, domain.ErrTicketNotFound
	}
	if ticket.JobTypeID == nil {
		return nil, nil, domain.ErrJobTypeMissing
	}
	jobType, err := s.repo.FindJobType(ctx, tx, *ticket.JobTypeID)
	if err != nil {
		return nil, nil, fmt.Errorf("load job type: %w", err)
	}
	if jobType == nil {
		return nil, nil, domain.ErrJobTypeMissing
	}
	return ticket, jobType, nil
}

// acquire takes the optional completion lock. Redis failures fall back to the
// database guarantees; only a lock held by someone else stops the call.
func (s *Service) acquire(ctx context.Context, ticketID snowflake.ID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	key := "ticket:complete:" + ticketID.String()
	token, ok, err := s.locker.TryLock(ctx, key, s.lockTTL)
	if err != nil {
		s.log.Warn("completion lock unavailable", zap.String("ticket_id", ticketID.String()), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, domain.ErrCompletionInProgress
	}
	return func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			s.log.Warn("failed to release completion lock", zap.String("ticket_id", ticketID.String()), zap.Error(err))
		}
	}, nil
}

func (s *Service) ensureCreative(ctx context.Context, creativeID snowflake.ID) error {
	_, err := s.ledgerSvc.FindCreative(ctx, creativeID)
	if errors.Is(err, ledgerdomain.ErrAccountNotFound) {
		return domain.ErrCreativeNotFound
	}
	return err
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action string, ticketID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLogTx(ctx, tx, action, "ticket", ticketID.String(), metadata); err != nil {
		s.log.Warn("failed to write ticket audit log", zap.String("action", action), zap.Error(err))
	}
}

func isNegative(v *int64) bool {
	return v != nil && *v < 0
}
