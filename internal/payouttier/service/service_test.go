package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/config"
	"github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"github.com/smallbiznis/tokenledger/internal/payouttier/repository"
	"github.com/smallbiznis/tokenledger/internal/testutil"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

var evalNow = time.Date(2026, time.May, 20, 10, 0, 0, 0, time.UTC)

func newTierService(t *testing.T, payout *config.PayoutConfigHolder) (domain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	svc := NewService(Params{
		DB:     db,
		Log:    zaptest.NewLogger(t),
		GenID:  node,
		Clock:  clock.NewFakeClock(evalNow),
		Repo:   repository.Provide(),
		Payout: payout,
	})
	return svc, db, node
}

func seedDone(t *testing.T, db *gorm.DB, node *snowflake.Node, companyID, creativeID snowflake.ID, at time.Time) {
	t.Helper()
	testutil.SeedTicket(t, db, ticketdomain.Ticket{
		ID:          node.Generate(),
		CompanyID:   companyID,
		CreativeID:  &creativeID,
		Status:      ticketdomain.StatusDone,
		CompletedAt: &at,
		CreatedAt:   at.Add(-time.Hour),
		UpdatedAt:   at,
	})
}

func TestEvaluate_CountsOnlyDoneTicketsInWindow(t *testing.T) {
	svc, db, node := newTierService(t, nil)
	ctx := context.Background()

	company := testutil.SeedCompany(t, db, node, 0)
	creative := testutil.SeedCreative(t, db, node)
	other := testutil.SeedCreative(t, db, node)

	_, err := svc.UpsertRule(ctx, domain.UpsertRuleRequest{Name: "Momentum", MinCompletedTickets: 3, TimeWindowDays: 30, PayoutPercent: 68, IsActive: true})
	require.NoError(t, err)

	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -1))
	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -5))
	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -40))
	seedDone(t, db, node, company.ID, other.ID, evalNow.AddDate(0, 0, -2))
	testutil.SeedTicket(t, db, ticketdomain.Ticket{
		ID:         node.Generate(),
		CompanyID:  company.ID,
		CreativeID: &creative.ID,
		Status:     ticketdomain.StatusInReview,
		UpdatedAt:  evalNow.AddDate(0, 0, -1),
	})

	eval, err := svc.Evaluate(ctx, creative.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BasePayoutPercent, eval.PayoutPercent)
	assert.False(t, eval.Matched())

	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -29))

	eval, err = svc.Evaluate(ctx, creative.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(68), eval.PayoutPercent)
	assert.Equal(t, "Momentum", eval.MatchedRuleName)
	assert.Equal(t, int64(3), eval.CompletedInWindow)
}

func TestEvaluate_BasePercentFromConfig(t *testing.T) {
	holder := config.NewStaticPayoutConfigHolder(config.PayoutConfig{MinimumWithdrawalTokens: 100, BasePayoutPercent: 55})
	svc, db, node := newTierService(t, holder)
	creative := testutil.SeedCreative(t, db, node)

	eval, err := svc.Evaluate(context.Background(), creative.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(55), eval.PayoutPercent)
}

func TestProgress_ReportsNextTier(t *testing.T) {
	svc, db, node := newTierService(t, nil)
	ctx := context.Background()
	company := testutil.SeedCompany(t, db, node, 0)
	creative := testutil.SeedCreative(t, db, node)

	_, err := svc.UpsertRule(ctx, domain.UpsertRuleRequest{Name: "Momentum", MinCompletedTickets: 1, TimeWindowDays: 30, PayoutPercent: 65, IsActive: true})
	require.NoError(t, err)
	pro, err := svc.UpsertRule(ctx, domain.UpsertRuleRequest{Name: "Pro", MinCompletedTickets: 5, TimeWindowDays: 30, PayoutPercent: 72, IsActive: true})
	require.NoError(t, err)

	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -3))
	seedDone(t, db, node, company.ID, creative.ID, evalNow.AddDate(0, 0, -4))

	progress, err := svc.Progress(ctx, creative.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(65), progress.Current.PayoutPercent)
	require.NotNil(t, progress.Next)
	assert.Equal(t, pro.ID, progress.Next.RuleID)
	assert.Equal(t, int64(3), progress.Next.Remaining)
}

func TestUpsertRule_ValidatesAndUpdates(t *testing.T) {
	svc, _, node := newTierService(t, nil)
	ctx := context.Background()

	invalid := []struct {
		req  domain.UpsertRuleRequest
		want error
	}{
		{domain.UpsertRuleRequest{Name: " ", TimeWindowDays: 30, PayoutPercent: 60}, domain.ErrInvalidRuleName},
		{domain.UpsertRuleRequest{Name: "x", TimeWindowDays: 0, PayoutPercent: 60}, domain.ErrInvalidRuleWindow},
		{domain.UpsertRuleRequest{Name: "x", TimeWindowDays: 30, MinCompletedTickets: -1, PayoutPercent: 60}, domain.ErrInvalidRuleMinimum},
		{domain.UpsertRuleRequest{Name: "x", TimeWindowDays: 30, PayoutPercent: 101}, domain.ErrInvalidRulePercent},
	}
	for _, tc := range invalid {
		_, err := svc.UpsertRule(ctx, tc.req)
		assert.ErrorIs(t, err, tc.want)
	}

	created, err := svc.UpsertRule(ctx, domain.UpsertRuleRequest{Name: "Pro", MinCompletedTickets: 5, TimeWindowDays: 30, PayoutPercent: 70, IsActive: true})
	require.NoError(t, err)

	updated, err := svc.UpsertRule(ctx, domain.UpsertRuleRequest{ID: &created.ID, Name: "Pro", MinCompletedTickets: 6, TimeWindowDays: 30, PayoutPercent: 71, IsActive: false})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)

	rules, err := svc.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, int64(71), rules[0].PayoutPercent)
	assert.False(t, rules[0].IsActive)

	missing := node.Generate()
	_, err = svc.UpsertRule(ctx, domain.UpsertRuleRequest{ID: &missing, Name: "Ghost", TimeWindowDays: 1, PayoutPercent: 1})
	assert.ErrorIs(t, err, domain.ErrRuleNotFound)
}
