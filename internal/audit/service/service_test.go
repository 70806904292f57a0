package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/audit/repository"
	"github.com/smallbiznis/tokenledger/internal/clock"
	obscontext "github.com/smallbiznis/tokenledger/internal/observability/context"
	"github.com/smallbiznis/tokenledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newAuditService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: testutil.NewNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
	return svc, db
}

func TestAuditLog_RecordsActorAndMasksMetadata(t *testing.T) {
	svc, db := newAuditService(t)

	ctx := obscontext.WithActor(context.Background(), obscontext.Actor{ID: "admin-7", Role: "admin"})
	ctx = obscontext.WithRequestID(ctx, "req-123")

	err := svc.AuditLog(ctx, "withdrawal.approved", "withdrawal", "991", map[string]any{
		"email":         "rina@example.com",
		"amount_tokens": 150,
	})
	require.NoError(t, err)

	var stored domain.AuditLog
	require.NoError(t, db.Where("action = ?", "withdrawal.approved").Take(&stored).Error)
	assert.Equal(t, "admin", stored.ActorType)
	require.NotNil(t, stored.ActorID)
	assert.Equal(t, "admin-7", *stored.ActorID)
	assert.Equal(t, "req-123", stored.Metadata["request_id"])
	assert.NotEqual(t, "rina@example.com", stored.Metadata["email"])
}

func TestAuditLog_DefaultsToSystemActor(t *testing.T) {
	svc, db := newAuditService(t)

	require.NoError(t, svc.AuditLog(context.Background(), "ledger.company_reconciled", "company", "1", nil))

	var stored domain.AuditLog
	require.NoError(t, db.Take(&stored).Error)
	assert.Equal(t, "system", stored.ActorType)
	assert.Nil(t, stored.ActorID)

	err := svc.AuditLog(context.Background(), " ", "company", "1", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestAuditLogTx_FailureKeepsTransactionUsable(t *testing.T) {
	svc, db := newAuditService(t)
	ctx := context.Background()

	require.NoError(t, db.Exec(`CREATE TABLE marker (id INTEGER PRIMARY KEY)`).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		require.NoError(t, tx.Exec(`INSERT INTO marker (id) VALUES (1)`).Error)
		require.NoError(t, tx.Exec(`DROP TABLE audit_logs`).Error)

		auditErr := svc.AuditLogTx(ctx, tx, "ticket.completed", "ticket", "5", nil)
		assert.Error(t, auditErr)

		return tx.Exec(`INSERT INTO marker (id) VALUES (2)`).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Raw(`SELECT COUNT(*) FROM marker`).Scan(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestList_FiltersAndPages(t *testing.T) {
	svc, _ := newAuditService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.AuditLog(ctx, "ticket.completed", "ticket", "t-1", nil))
	}
	require.NoError(t, svc.AuditLog(ctx, "withdrawal.requested", "withdrawal", "w-1", nil))

	req := domain.ListAuditLogRequest{Action: "ticket.completed"}
	req.PageSize = 2
	first, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, first.AuditLogs, 2)
	assert.True(t, first.HasMore)

	req.PageToken = first.NextPageToken
	second, err := svc.List(ctx, req)
	require.NoError(t, err)
	assert.Len(t, second.AuditLogs, 1)
	assert.False(t, second.HasMore)

	req.PageToken = "%%%"
	_, err = svc.List(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidPageToken)
}
