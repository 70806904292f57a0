package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"github.com/smallbiznis/tokenledger/pkg/db"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       ledgerdomain.Repository
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       ledgerdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Post(ctx context.Context, req ledgerdomain.PostEntryRequest) (*ledgerdomain.LedgerEntry, error) {
	var entry *ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := s.PostTx(ctx, tx, req)
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.OwnerKind), string(entry.Direction), string(entry.Reason), entry.Amount)
	return entry, nil
}

// PostTx appends one entry and, for companies, moves the cached balance in
// the same transaction. The account row is locked first so the before/after
// snapshot cannot interleave with another posting to the same account.
func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.PostEntryRequest) (*ledgerdomain.LedgerEntry, error) {
	if err := validatePost(&req); err != nil {
		return nil, err
	}

	before, err := s.lockBalance(ctx, tx, req.Account)
	if err != nil {
		return nil, err
	}

	if req.RequireSufficientBalance && req.Direction == ledgerdomain.DirectionDebit && before < req.Amount {
		return nil, ledgerdomain.ErrInsufficientBalance
	}

	now := s.clock.Now()
	entry := &ledgerdomain.LedgerEntry{
		ID:            s.genID.Generate(),
		OwnerKind:     req.Account.Kind,
		OwnerID:       req.Account.ID,
		Direction:     req.Direction,
		Amount:        req.Amount,
		Reason:        req.Reason,
		TicketID:      req.TicketID,
		BalanceBefore: before,
		BalanceAfter:  before + req.Direction.Sign()*req.Amount,
		CreatedAt:     now,
	}
	if len(req.Metadata) > 0 {
		entry.Metadata = datatypes.JSONMap(req.Metadata)
	}

	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		if req.Reason == ledgerdomain.ReasonTicketPayout && db.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrDuplicatePayout
		}
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	if req.Account.Kind == ledgerdomain.OwnerKindCompany {
		if err := s.repo.UpdateCompanyBalance(ctx, tx, req.Account.ID, entry.BalanceAfter, now); err != nil {
			return nil, fmt.Errorf("update company balance: %w", err)
		}
	}

	s.audit(ctx, tx, "ledger.entry_posted", "ledger_entry", entry.ID.String(), map[string]any{
		"owner_kind":     string(entry.OwnerKind),
		"owner_id":       entry.OwnerID.String(),
		"direction":      string(entry.Direction),
		"amount":         entry.Amount,
		"reason":         string(entry.Reason),
		"balance_before": entry.BalanceBefore,
		"balance_after":  entry.BalanceAfter,
	})

	return entry, nil
}

func (s *Service) BalanceOf(ctx context.Context, account ledgerdomain.Account) (int64, error) {
	return s.BalanceOfTx(ctx, s.db, account)
}

// BalanceOfTx reads the cached field for companies and aggregates entries for creatives.
func (s *Service) BalanceOfTx(ctx context.Context, tx *gorm.DB, account ledgerdomain.Account) (int64, error) {
	switch account.Kind {
	case ledgerdomain.OwnerKindCompany:
		company, err := s.repo.FindCompany(ctx, tx, account.ID)
		if err != nil {
			return 0, err
		}
		if company == nil {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return company.TokenBalance, nil
	case ledgerdomain.OwnerKindCreative:
		creative, err := s.repo.FindCreative(ctx, tx, account.ID)
		if err != nil {
			return 0, err
		}
		if creative == nil {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return s.repo.SumByAccount(ctx, tx, account)
	default:
		return 0, ledgerdomain.ErrInvalidOwner
	}
}

func (s *Service) JournalBalance(ctx context.Context, account ledgerdomain.Account) (int64, error) {
	if !account.Kind.Valid() {
		return 0, ledgerdomain.ErrInvalidOwner
	}
	return s.repo.SumByAccount(ctx, s.db, account)
}

// Reconcile overwrites the cached company balance with the journal sum. It
// never posts entries, so running it repeatedly converges on the same value.
func (s *Service) Reconcile(ctx context.Context, companyID snowflake.ID) (ledgerdomain.ReconcileResult, error) {
	var result ledgerdomain.ReconcileResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		company, err := s.repo.LockCompany(ctx, tx, companyID)
		if err != nil {
			return fmt.Errorf("lock company: %w", err)
		}
		if company == nil {
			return ledgerdomain.ErrAccountNotFound
		}

		journal, err := s.repo.SumByAccount(ctx, tx, ledgerdomain.CompanyAccount(companyID))
		if err != nil {
			return fmt.Errorf("sum company journal: %w", err)
		}

		result = ledgerdomain.ReconcileResult{
			CompanyID: companyID,
			Previous:  company.TokenBalance,
			Balance:   journal,
			Drift:     company.TokenBalance - journal,
		}
		if result.Drift == 0 {
			return nil
		}

		s.log.Warn("company balance drift repaired",
			zap.String("company_id", companyID.String()),
			zap.Int64("cached", company.TokenBalance),
			zap.Int64("journal", journal),
			zap.Int64("drift", result.Drift),
		)
		if err := s.repo.UpdateCompanyBalance(ctx, tx, companyID, journal, s.clock.Now()); err != nil {
			return fmt.Errorf("update company balance: %w", err)
		}
		s.audit(ctx, tx, "ledger.company_reconciled", "company", companyID.String(), map[string]any{
			"previous_balance": result.Previous,
			"balance":          result.Balance,
			"drift":            result.Drift,
		})
		return nil
	})
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}
	if result.Drift != 0 {
		s.obsMetrics.RecordReconcileDrift(ctx)
	}
	return result, nil
}

func (s *Service) ListEntries(ctx context.Context, req ledgerdomain.ListEntriesRequest) (ledgerdomain.ListEntriesResponse, error) {
	if !req.Account.Kind.Valid() {
		return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidOwner
	}

	filter := ledgerdomain.ListFilter{
		Account: req.Account,
		Limit:   int(pagination.NormalizeSize(int32(req.PageSize))),
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(cursor.ID))
		if err != nil || id == 0 {
			return ledgerdomain.ListEntriesResponse{}, ledgerdomain.ErrInvalidPageToken
		}
		filter.BeforeID = &id
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return ledgerdomain.ListEntriesResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, int32(filter.Limit), func(item *ledgerdomain.LedgerEntry) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return ledgerdomain.ListEntriesResponse{PageInfo: pageInfo, Entries: entries}, nil
}

// EntriesBetween returns entries in [from, to), newest first.
func (s *Service) EntriesBetween(ctx context.Context, account ledgerdomain.Account, from, to time.Time) ([]ledgerdomain.LedgerEntry, error) {
	if !account.Kind.Valid() {
		return nil, ledgerdomain.ErrInvalidOwner
	}
	if !from.Before(to) {
		return nil, ledgerdomain.ErrInvalidPeriod
	}

	items, err := s.repo.List(ctx, s.db, ledgerdomain.ListFilter{
		Account: account,
		From:    &from,
		To:      &to,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]ledgerdomain.LedgerEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, *item)
	}
	return entries, nil
}

func (s *Service) ListCompanyIDs(ctx context.Context) ([]snowflake.ID, error) {
	return s.repo.ListCompanyIDs(ctx, s.db)
}

func (s *Service) FindTicketPayoutTx(ctx context.Context, tx *gorm.DB, ticketID snowflake.ID) (*ledgerdomain.LedgerEntry, error) {
	return s.repo.FindTicketPayout(ctx, tx, ticketID)
}

func (s *Service) FindCreative(ctx context.Context, id snowflake.ID) (*ledgerdomain.Creative, error) {
	creative, err := s.repo.FindCreative(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if creative == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	return creative, nil
}

// lockBalance locks the owning row and returns the balance the next entry builds on.
func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, account ledgerdomain.Account) (int64, error) {
	switch account.Kind {
	case ledgerdomain.OwnerKindCompany:
		company, err := s.repo.LockCompany(ctx, tx, account.ID)
		if err != nil {
			return 0, fmt.Errorf("lock company: %w", err)
		}
		if company == nil {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return company.TokenBalance, nil
	case ledgerdomain.OwnerKindCreative:
		creative, err := s.repo.LockCreative(ctx, tx, account.ID)
		if err != nil {
			return 0, fmt.Errorf("lock creative: %w", err)
		}
		if creative == nil {
			return 0, ledgerdomain.ErrAccountNotFound
		}
		return s.repo.SumByAccount(ctx, tx, account)
	default:
		return 0, ledgerdomain.ErrInvalidOwner
	}
}

func (s *Service) audit(ctx context.Context, tx *gorm.DB, action, targetType, targetID string, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.AuditLogTx(ctx, tx, action, targetType, targetID, metadata); err != nil {
		s.log.Warn("failed to write ledger audit log", zap.String("action", action), zap.Error(err))
	}
}

func validatePost(req *ledgerdomain.PostEntryRequest) error {
	if req.Amount <= 0 {
		return ledgerdomain.ErrInvalidAmount
	}
	if !req.Account.Kind.Valid() || req.Account.ID == 0 {
		return ledgerdomain.ErrInvalidOwner
	}
	req.Direction = ledgerdomain.Direction(strings.ToLower(strings.TrimSpace(string(req.Direction))))
	if !req.Direction.Valid() {
		return ledgerdomain.ErrInvalidDirection
	}
	req.Reason = ledgerdomain.Reason(strings.TrimSpace(string(req.Reason)))
	if req.Reason == "" {
		return ledgerdomain.ErrInvalidReason
	}
	if req.Reason == ledgerdomain.ReasonTicketPayout && (req.TicketID == nil || *req.TicketID == 0) {
		return ledgerdomain.ErrInvalidReason
	}
	return nil
}
