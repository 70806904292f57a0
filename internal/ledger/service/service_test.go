package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	auditrepository "github.com/smallbiznis/tokenledger/internal/audit/repository"
	auditservice "github.com/smallbiznis/tokenledger/internal/audit/service"
	"github.com/smallbiznis/tokenledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/ledger/repository"
	"github.com/smallbiznis/tokenledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	clock *clock.FakeClock
	svc   ledgerdomain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepository.Provide(),
	})
	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     repository.Provide(),
		AuditSvc: auditSvc,
	})
	return fixture{db: db, node: node, clock: clk, svc: svc}
}

func TestPost_CompanyCreditMovesCachedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := testutil.SeedCompany(t, f.db, f.node, 100)

	entry, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
		Account:   ledgerdomain.CompanyAccount(company.ID),
		Direction: ledgerdomain.DirectionCredit,
		Amount:    250,
		Reason:    ledgerdomain.ReasonPlanPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.BalanceBefore)
	assert.Equal(t, int64(350), entry.BalanceAfter)
	assert.True(t, entry.CreatedAt.Equal(f.clock.Now()))

	balance, err := f.svc.BalanceOf(ctx, ledgerdomain.CompanyAccount(company.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(350), balance)

	journal, err := f.svc.JournalBalance(ctx, ledgerdomain.CompanyAccount(company.ID))
	require.NoError(t, err)
	assert.Equal(t, balance, journal)
}

func TestPost_ChainsBalanceSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creative := testutil.SeedCreative(t, f.db, f.node)
	acct := ledgerdomain.CreativeAccount(creative.ID)

	amounts := []struct {
		dir    ledgerdomain.Direction
		amount int64
	}{
		{ledgerdomain.DirectionCredit, 40},
		{ledgerdomain.DirectionCredit, 25},
		{ledgerdomain.DirectionDebit, 30},
		{ledgerdomain.DirectionCredit, 5},
	}

	var prev int64
	for _, step := range amounts {
		entry, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
			Account:   acct,
			Direction: step.dir,
			Amount:    step.amount,
			Reason:    ledgerdomain.ReasonAdminAdjustment,
		})
		require.NoError(t, err)
		assert.Equal(t, prev, entry.BalanceBefore)
		assert.Equal(t, entry.BalanceBefore+step.dir.Sign()*step.amount, entry.BalanceAfter)
		prev = entry.BalanceAfter
		f.clock.Advance(time.Minute)
	}

	balance, err := f.svc.BalanceOf(ctx, acct)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)
	assert.Equal(t, prev, balance)
}

func TestPost_DirectionIsNormalized(t *testing.T) {
	f := newFixture(t)
	company := testutil.SeedCompany(t, f.db, f.node, 0)

	entry, err := f.svc.Post(context.Background(), ledgerdomain.PostEntryRequest{
		Account:   ledgerdomain.CompanyAccount(company.ID),
		Direction: " CREDIT ",
		Amount:    10,
		Reason:    ledgerdomain.ReasonPlanPurchase,
	})
	require.NoError(t, err)
	assert.Equal(t, ledgerdomain.DirectionCredit, entry.Direction)
}

func TestPost_Validation(t *testing.T) {
	f := newFixture(t)
	company := testutil.SeedCompany(t, f.db, f.node, 10)
	ticketID := f.node.Generate()

	cases := []struct {
		name string
		req  ledgerdomain.PostEntryRequest
		want error
	}{
		{
			name: "zero amount",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CompanyAccount(company.ID), Direction: ledgerdomain.DirectionCredit, Reason: ledgerdomain.ReasonPlanPurchase},
			want: ledgerdomain.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CompanyAccount(company.ID), Direction: ledgerdomain.DirectionCredit, Amount: -5, Reason: ledgerdomain.ReasonPlanPurchase},
			want: ledgerdomain.ErrInvalidAmount,
		},
		{
			name: "unknown owner kind",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.Account{Kind: "agency", ID: company.ID}, Direction: ledgerdomain.DirectionCredit, Amount: 1, Reason: ledgerdomain.ReasonPlanPurchase},
			want: ledgerdomain.ErrInvalidOwner,
		},
		{
			name: "unknown direction",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CompanyAccount(company.ID), Direction: "sideways", Amount: 1, Reason: ledgerdomain.ReasonPlanPurchase},
			want: ledgerdomain.ErrInvalidDirection,
		},
		{
			name: "empty reason",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CompanyAccount(company.ID), Direction: ledgerdomain.DirectionCredit, Amount: 1},
			want: ledgerdomain.ErrInvalidReason,
		},
		{
			name: "payout without ticket",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CompanyAccount(company.ID), Direction: ledgerdomain.DirectionCredit, Amount: 1, Reason: ledgerdomain.ReasonTicketPayout},
			want: ledgerdomain.ErrInvalidReason,
		},
		{
			name: "missing account",
			req:  ledgerdomain.PostEntryRequest{Account: ledgerdomain.CreativeAccount(f.node.Generate()), Direction: ledgerdomain.DirectionCredit, Amount: 1, Reason: ledgerdomain.ReasonTicketPayout, TicketID: &ticketID},
			want: ledgerdomain.ErrAccountNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Post(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "only the opening purchase entry exists")
}

func TestPost_InsufficientBalanceLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := testutil.SeedCompany(t, f.db, f.node, 30)

	_, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
		Account:                  ledgerdomain.CompanyAccount(company.ID),
		Direction:                ledgerdomain.DirectionDebit,
		Amount:                   31,
		Reason:                   ledgerdomain.ReasonTicketCharge,
		RequireSufficientBalance: true,
	})
	require.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	balance, err := f.svc.BalanceOf(ctx, ledgerdomain.CompanyAccount(company.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(30), balance)

	// Without the guard the same debit may overdraw.
	entry, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
		Account:   ledgerdomain.CompanyAccount(company.ID),
		Direction: ledgerdomain.DirectionDebit,
		Amount:    31,
		Reason:    ledgerdomain.ReasonAdminAdjustment,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(-1), entry.BalanceAfter)
}

func TestPost_SecondPayoutForTicketIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creative := testutil.SeedCreative(t, f.db, f.node)
	ticketID := f.node.Generate()

	req := ledgerdomain.PostEntryRequest{
		Account:   ledgerdomain.CreativeAccount(creative.ID),
		Direction: ledgerdomain.DirectionCredit,
		Amount:    12,
		Reason:    ledgerdomain.ReasonTicketPayout,
		TicketID:  &ticketID,
	}
	_, err := f.svc.Post(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Post(ctx, req)
	require.ErrorIs(t, err, ledgerdomain.ErrDuplicatePayout)

	balance, err := f.svc.BalanceOf(ctx, ledgerdomain.CreativeAccount(creative.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(12), balance)

	payout, err := f.svc.FindTicketPayoutTx(ctx, f.db, ticketID)
	require.NoError(t, err)
	require.NotNil(t, payout)
	assert.Equal(t, int64(12), payout.Amount)
}

func TestPost_WritesAuditRecord(t *testing.T) {
	f := newFixture(t)
	company := testutil.SeedCompany(t, f.db, f.node, 0)

	entry, err := f.svc.Post(context.Background(), ledgerdomain.PostEntryRequest{
		Account:   ledgerdomain.CompanyAccount(company.ID),
		Direction: ledgerdomain.DirectionCredit,
		Amount:    75,
		Reason:    ledgerdomain.ReasonPlanPurchase,
	})
	require.NoError(t, err)

	var logs []auditdomain.AuditLog
	require.NoError(t, f.db.Where("action = ?", "ledger.entry_posted").Find(&logs).Error)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].TargetID)
	assert.Equal(t, entry.ID.String(), *logs[0].TargetID)
	assert.Equal(t, "system", logs[0].ActorType)
}

func TestBalanceOf_UnknownAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BalanceOf(ctx, ledgerdomain.CompanyAccount(f.node.Generate()))
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)

	_, err = f.svc.BalanceOf(ctx, ledgerdomain.CreativeAccount(f.node.Generate()))
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)

	_, err = f.svc.BalanceOf(ctx, ledgerdomain.Account{Kind: "agency", ID: 1})
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidOwner)
}

func TestBalanceOf_CreativeWithoutEntriesIsZero(t *testing.T) {
	f := newFixture(t)
	creative := testutil.SeedCreative(t, f.db, f.node)

	balance, err := f.svc.BalanceOf(context.Background(), ledgerdomain.CreativeAccount(creative.ID))
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestReconcile_RepairsDriftAndIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := testutil.SeedCompany(t, f.db, f.node, 500)

	require.NoError(t, f.db.Model(&ledgerdomain.Company{}).
		Where("id = ?", company.ID).
		Update("token_balance", 420).Error)

	result, err := f.svc.Reconcile(ctx, company.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(420), result.Previous)
	assert.Equal(t, int64(500), result.Balance)
	assert.Equal(t, int64(-80), result.Drift)

	balance, err := f.svc.BalanceOf(ctx, ledgerdomain.CompanyAccount(company.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)

	again, err := f.svc.Reconcile(ctx, company.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Drift)
	assert.Equal(t, int64(500), again.Balance)

	var entries int64
	require.NoError(t, f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&entries).Error)
	assert.Equal(t, int64(1), entries, "reconcile never posts entries")

	var audits int64
	require.NoError(t, f.db.Model(&auditdomain.AuditLog{}).Where("action = ?", "ledger.company_reconciled").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestReconcile_UnknownCompany(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reconcile(context.Background(), f.node.Generate())
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestListEntries_PagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	company := testutil.SeedCompany(t, f.db, f.node, 0)
	acct := ledgerdomain.CompanyAccount(company.ID)

	var posted []snowflake.ID
	for i := 0; i < 5; i++ {
		entry, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
			Account:   acct,
			Direction: ledgerdomain.DirectionCredit,
			Amount:    int64(i + 1),
			Reason:    ledgerdomain.ReasonPlanPurchase,
		})
		require.NoError(t, err)
		posted = append(posted, entry.ID)
		f.clock.Advance(time.Second)
	}

	req := ledgerdomain.ListEntriesRequest{Account: acct}
	req.PageSize = 2

	first, err := f.svc.ListEntries(ctx, req)
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, posted[4], first.Entries[0].ID)
	assert.Equal(t, posted[3], first.Entries[1].ID)

	req.PageToken = first.NextPageToken
	second, err := f.svc.ListEntries(ctx, req)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)
	assert.Equal(t, posted[2], second.Entries[0].ID)

	req.PageToken = second.NextPageToken
	third, err := f.svc.ListEntries(ctx, req)
	require.NoError(t, err)
	require.Len(t, third.Entries, 1)
	assert.False(t, third.HasMore)
	assert.Equal(t, posted[0], third.Entries[0].ID)

	req.PageToken = "not-a-token"
	_, err = f.svc.ListEntries(ctx, req)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPageToken)
}

func TestEntriesBetween_HalfOpenPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	creative := testutil.SeedCreative(t, f.db, f.node)
	acct := ledgerdomain.CreativeAccount(creative.ID)
	start := f.clock.Now()

	for i := 0; i < 3; i++ {
		_, err := f.svc.Post(ctx, ledgerdomain.PostEntryRequest{
			Account:   acct,
			Direction: ledgerdomain.DirectionCredit,
			Amount:    10,
			Reason:    ledgerdomain.ReasonAdminAdjustment,
		})
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
	}

	entries, err := f.svc.EntriesBetween(ctx, acct, start, start.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = f.svc.EntriesBetween(ctx, acct, start, start)
	assert.ErrorIs(t, err, ledgerdomain.ErrInvalidPeriod)
}

func TestListCompanyIDs(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedCompany(t, f.db, f.node, 0)
	b := testutil.SeedCompany(t, f.db, f.node, 0)

	ids, err := f.svc.ListCompanyIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []snowflake.ID{a.ID, b.ID}, ids)
}
