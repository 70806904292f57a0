package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tokenledger/internal/clock"
	"github.com/smallbiznis/tokenledger/internal/ledger/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestReconcile_RollsBackWhenBalanceWriteFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	companyID := node.Generate()
	now := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	svc := NewService(Params{
		DB:    db,
		Log:   zaptest.NewLogger(t),
		GenID: node,
		Clock: clock.NewFakeClock(now),
		Repo:  repository.Provide(),
	})

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "companies" WHERE id = .* FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "token_balance", "created_at", "updated_at"}).
			AddRow(int64(companyID), "Acme Studio", int64(90), now, now))
	mock.ExpectQuery(`SELECT COALESCE\(SUM`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(120)))
	mock.ExpectExec(`UPDATE companies SET token_balance`).
		WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectRollback()

	_, err = svc.Reconcile(context.Background(), companyID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update company balance")
	assert.NoError(t, mock.ExpectationsWereMet())
}
