package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Payout   *config.PayoutConfigHolder `optional:"true"`
	AuditSvc auditdomain.Service        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	payout   *config.PayoutConfigHolder
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payouttier.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		payout:   p.Payout,
		auditSvc: p.AuditSvc,
	}
}

func (s *Service) Evaluate(ctx context.Context, creativeID snowflake.ID) (domain.Evaluation, error) {
	return s.EvaluateTx(ctx, s.db, creativeID)
}

func (s *Service) EvaluateTx(ctx context.Context, tx *gorm.DB, creativeID snowflake.ID) (domain.Evaluation, error) {
	rules, err := s.repo.ListActive(ctx, tx)
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("list payout rules: %w", err)
	}

	evaluation, err := domain.SelectTier(rules, s.clock.Now(), s.basePercent(), s.counter(ctx, tx, creativeID))
	if err != nil {
		return domain.Evaluation{}, fmt.Errorf("count completed tickets: %w", err)
	}
	return evaluation, nil
}

func (s *Service) Progress(ctx context.Context, creativeID snowflake.ID) (domain.Progress, error) {
	rules, err := s.repo.ListActive(ctx, s.db)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("list payout rules: %w", err)
	}

	now := s.clock.Now()
	count := s.counter(ctx, s.db, creativeID)
	current, err := domain.SelectTier(rules, now, s.basePercent(), count)
	if err != nil {
		return domain.Progress{}, err
	}
	next, err := domain.NextTierFor(rules, now, current, count)
	if err != nil {
		return domain.Progress{}, err
	}
	return domain.Progress{Current: current, Next: next}, nil
}

func (s *Service) ListRules(ctx context.Context) ([]domain.PayoutRule, error) {
	return s.repo.ListAll(ctx, s.db)
}

func (s *Service) UpsertRule(ctx context.Context, req domain.UpsertRuleRequest) (*domain.PayoutRule, error) {
	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		return nil, domain.ErrInvalidRuleName
	case req.TimeWindowDays <= 0:
		return nil, domain.ErrInvalidRuleWindow
	case req.MinCompletedTickets < 0:
		return nil, domain.ErrInvalidRuleMinimum
	case req.PayoutPercent < 0 || req.PayoutPercent > 100:
		return nil, domain.ErrInvalidRulePercent
	}

	now := s.clock.Now()
	var rule *domain.PayoutRule
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.ID != nil {
			existing, err := s.repo.FindByID(ctx, tx, *req.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return domain.ErrRuleNotFound
			}
			rule = existing
		} else {
			rule = &domain.PayoutRule{ID: s.genID.Generate(), CreatedAt: now}
		}

		rule.Name = name
		rule.MinCompletedTickets = req.MinCompletedTickets
		rule.TimeWindowDays = req.TimeWindowDays
		rule.PayoutPercent = req.PayoutPercent
		rule.IsActive = req.IsActive
		rule.UpdatedAt = now

		if err := s.repo.Save(ctx, tx, rule); err != nil {
			return err
		}
		if s.auditSvc != nil {
			if err := s.auditSvc.AuditLogTx(ctx, tx, "payout_rule.saved", "payout_rule", rule.ID.String(), map[string]any{
				"payout_percent":        rule.PayoutPercent,
				"min_completed_tickets": rule.MinCompletedTickets,
				"time_window_days":      rule.TimeWindowDays,
				"is_active":             rule.IsActive,
			}); err != nil {
				s.log.Warn("failed to write payout rule audit log", zap.Error(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) basePercent() int64 {
	if s.payout == nil {
		return domain.BasePayoutPercent
	}
	return s.payout.BasePayoutPercent()
}

func (s *Service) counter(ctx context.Context, tx *gorm.DB, creativeID snowflake.ID) domain.CompletionCounter {
	return func(since time.Time) (int64, error) {
		return s.repo.CountCompletedSince(ctx, tx, creativeID, since)
	}
}
