package server

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/statement"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"github.com/stretchr/testify/mock"
)

// Each mock embeds its interface so methods a test does not stub panic.

type mockLedger struct {
	ledgerdomain.Service
	mock.Mock
}

func (m *mockLedger) Post(ctx context.Context, req ledgerdomain.PostEntryRequest) (*ledgerdomain.LedgerEntry, error) {
	args := m.Called(ctx, req)
	entry, _ := args.Get(0).(*ledgerdomain.LedgerEntry)
	return entry, args.Error(1)
}

func (m *mockLedger) BalanceOf(ctx context.Context, account ledgerdomain.Account) (int64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockLedger) Reconcile(ctx context.Context, companyID snowflake.ID) (ledgerdomain.ReconcileResult, error) {
	args := m.Called(ctx, companyID)
	return args.Get(0).(ledgerdomain.ReconcileResult), args.Error(1)
}

type mockTickets struct {
	ticketdomain.Service
	mock.Mock
}

func (m *mockTickets) Get(ctx context.Context, id snowflake.ID) (*ticketdomain.Ticket, error) {
	args := m.Called(ctx, id)
	ticket, _ := args.Get(0).(*ticketdomain.Ticket)
	return ticket, args.Error(1)
}

func (m *mockTickets) Complete(ctx context.Context, id snowflake.ID) (ticketdomain.CompletionResult, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(ticketdomain.CompletionResult), args.Error(1)
}

func (m *mockTickets) Transition(ctx context.Context, id snowflake.ID, to ticketdomain.Status) (ticketdomain.TransitionResult, error) {
	args := m.Called(ctx, id, to)
	return args.Get(0).(ticketdomain.TransitionResult), args.Error(1)
}

func (m *mockTickets) Create(ctx context.Context, req ticketdomain.CreateTicketRequest) (ticketdomain.CreateResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ticketdomain.CreateResult), args.Error(1)
}

type mockWithdrawals struct {
	withdrawaldomain.Service
	mock.Mock
}

func (m *mockWithdrawals) Request(ctx context.Context, creativeID snowflake.ID, amount int64) (*withdrawaldomain.Withdrawal, error) {
	args := m.Called(ctx, creativeID, amount)
	w, _ := args.Get(0).(*withdrawaldomain.Withdrawal)
	return w, args.Error(1)
}

func (m *mockWithdrawals) Get(ctx context.Context, id snowflake.ID) (*withdrawaldomain.Withdrawal, error) {
	args := m.Called(ctx, id)
	w, _ := args.Get(0).(*withdrawaldomain.Withdrawal)
	return w, args.Error(1)
}

func (m *mockWithdrawals) Cancel(ctx context.Context, id snowflake.ID) (*withdrawaldomain.Withdrawal, error) {
	args := m.Called(ctx, id)
	w, _ := args.Get(0).(*withdrawaldomain.Withdrawal)
	return w, args.Error(1)
}

func (m *mockWithdrawals) Reject(ctx context.Context, id snowflake.ID, note string) (*withdrawaldomain.Withdrawal, error) {
	args := m.Called(ctx, id, note)
	w, _ := args.Get(0).(*withdrawaldomain.Withdrawal)
	return w, args.Error(1)
}

type mockStatements struct {
	statement.Service
	mock.Mock
}

func (m *mockStatements) Render(ctx context.Context, creativeID snowflake.ID, from, to time.Time) ([]byte, error) {
	args := m.Called(ctx, creativeID, from, to)
	body, _ := args.Get(0).([]byte)
	return body, args.Error(1)
}
