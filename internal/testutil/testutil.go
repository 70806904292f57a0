// Package testutil builds in-memory databases and fixtures for service tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/migration"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch is the creation time stamped on fixtures.
var Epoch = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

// NewDB opens a private in-memory sqlite database with the full schema. The
// pool is pinned to one connection so every query sees the same memory db.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(conn))
	return conn
}

func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// SeedCompany creates a company and, for a positive opening balance, the
// plan_purchase entry that backs it so cache and journal agree.
func SeedCompany(t *testing.T, db *gorm.DB, node *snowflake.Node, balance int64) ledgerdomain.Company {
	t.Helper()

	company := ledgerdomain.Company{
		ID:           node.Generate(),
		Name:         "Acme Studio",
		TokenBalance: balance,
		CreatedAt:    Epoch,
		UpdatedAt:    Epoch,
	}
	require.NoError(t, db.Create(&company).Error)
	if balance > 0 {
		require.NoError(t, db.Create(&ledgerdomain.LedgerEntry{
			ID:            node.Generate(),
			OwnerKind:     ledgerdomain.OwnerKindCompany,
			OwnerID:       company.ID,
			Direction:     ledgerdomain.DirectionCredit,
			Amount:        balance,
			Reason:        ledgerdomain.ReasonPlanPurchase,
			BalanceBefore: 0,
			BalanceAfter:  balance,
			CreatedAt:     Epoch,
		}).Error)
	}
	return company
}

func SeedCreative(t *testing.T, db *gorm.DB, node *snowflake.Node) ledgerdomain.Creative {
	t.Helper()

	creative := ledgerdomain.Creative{
		ID:        node.Generate(),
		Name:      "Rina",
		Email:     "rina@example.com",
		CreatedAt: Epoch,
	}
	require.NoError(t, db.Create(&creative).Error)
	return creative
}

// CreditCreative writes a raw credit entry for a creative, continuing its running balance.
func CreditCreative(t *testing.T, db *gorm.DB, node *snowflake.Node, creativeID snowflake.ID, amount int64) ledgerdomain.LedgerEntry {
	t.Helper()

	var before int64
	require.NoError(t, db.Raw(
		`SELECT COALESCE(SUM(CASE WHEN direction = 'credit' THEN amount ELSE -amount END), 0)
		 FROM ledger_entries WHERE owner_kind = ? AND owner_id = ?`,
		ledgerdomain.OwnerKindCreative, creativeID,
	).Scan(&before).Error)

	entry := ledgerdomain.LedgerEntry{
		ID:            node.Generate(),
		OwnerKind:     ledgerdomain.OwnerKindCreative,
		OwnerID:       creativeID,
		Direction:     ledgerdomain.DirectionCredit,
		Amount:        amount,
		Reason:        ledgerdomain.ReasonAdminAdjustment,
		BalanceBefore: before,
		BalanceAfter:  before + amount,
		CreatedAt:     Epoch,
	}
	require.NoError(t, db.Create(&entry).Error)
	return entry
}

func SeedJobType(t *testing.T, db *gorm.DB, node *snowflake.Node, tokenCost, basePayout int64) ticketdomain.JobType {
	t.Helper()

	jobType := ticketdomain.JobType{
		ID:               node.Generate(),
		Name:             "Short video edit",
		TokenCost:        tokenCost,
		BasePayoutTokens: basePayout,
		CreatedAt:        Epoch,
		UpdatedAt:        Epoch,
	}
	require.NoError(t, db.Create(&jobType).Error)
	return jobType
}

// SeedTicket inserts a ticket directly, bypassing creation charges.
func SeedTicket(t *testing.T, db *gorm.DB, ticket ticketdomain.Ticket) ticketdomain.Ticket {
	t.Helper()

	if ticket.Title == "" {
		ticket.Title = "Launch teaser"
	}
	if ticket.Status == "" {
		ticket.Status = ticketdomain.StatusInReview
	}
	if ticket.Quantity == 0 {
		ticket.Quantity = 1
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = Epoch
	}
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}
	require.NoError(t, db.Create(&ticket).Error)
	return ticket
}
