package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/observability"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	"github.com/smallbiznis/tokenledger/internal/testutil"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	engine      *gin.Engine
	ledger      *mockLedger
	tickets     *mockTickets
	withdrawals *mockWithdrawals
	statements  *mockStatements
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	enforcer, err := authorization.NewEnforcer(testutil.NewDB(t))
	require.NoError(t, err)

	h := harness{
		ledger:      new(mockLedger),
		tickets:     new(mockTickets),
		withdrawals: new(mockWithdrawals),
		statements:  new(mockStatements),
	}
	engine := NewEngine(observability.Config{}, obsmetrics.NewHTTPMetrics(prometheus.NewRegistry()))
	NewServer(ServerParams{
		Gin:           engine,
		Log:           log,
		AuthzSvc:      authorization.NewService(authorization.Params{Log: log, Enforcer: enforcer}),
		LedgerSvc:     h.ledger,
		StatementSvc:  h.statements,
		TicketSvc:     h.tickets,
		WithdrawalSvc: h.withdrawals,
	})
	h.engine = engine
	return h
}

func (h harness) do(method, path, role, actorID string, body any) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(HeaderActorRole, role)
		req.Header.Set(HeaderActorID, actorID)
	}
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/health", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMissingActorIsUnauthorized(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/api/accounts/creative/7/balance", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestPostLedgerEntry(t *testing.T) {
	h := newHarness(t)
	entry := &ledgerdomain.LedgerEntry{ID: 11, OwnerKind: ledgerdomain.OwnerKindCompany, OwnerID: 5, Amount: 500}

	h.ledger.On("Post", mock.Anything, mock.MatchedBy(func(req ledgerdomain.PostEntryRequest) bool {
		return req.Account == ledgerdomain.CompanyAccount(5) &&
			req.Direction == ledgerdomain.DirectionCredit &&
			req.Reason == ledgerdomain.ReasonPlanPurchase &&
			req.RequireSufficientBalance
	})).Return(entry, nil).Once()

	body := gin.H{"owner_kind": "company", "owner_id": "5", "direction": "CREDIT", "amount": 500, "reason": "plan_purchase"}

	rec := h.do(http.MethodPost, "/api/ledger/entries", "creative", "9", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/ledger/entries", "admin", "1", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	h.ledger.AssertExpectations(t)
}

func TestPostLedgerEntry_ReservedReason(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/ledger/entries", "admin", "1", gin.H{
		"owner_kind": "creative", "owner_id": "5", "direction": "credit", "amount": 10, "reason": "ticket_payout",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reserved_reason", decodeError(t, rec).Message)
	h.ledger.AssertNotCalled(t, "Post", mock.Anything, mock.Anything)
}

func TestAccountBalance_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	h.ledger.On("BalanceOf", mock.Anything, ledgerdomain.CreativeAccount(7)).Return(int64(42), nil).Once()

	rec := h.do(http.MethodGet, "/api/accounts/creative/7/balance", "creative", "8", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/accounts/company/7/balance", "creative", "7", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/accounts/creative/7/balance", "creative", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"owner_kind":"creative","owner_id":"7","balance":42}}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/api/accounts/vendor/7/balance", "admin", "1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReconcileCompany_AdminOnly(t *testing.T) {
	h := newHarness(t)
	h.ledger.On("Reconcile", mock.Anything, snowflake.ID(5)).
		Return(ledgerdomain.ReconcileResult{CompanyID: 5, Previous: 10, Balance: 8, Drift: 2}, nil).Once()

	rec := h.do(http.MethodPost, "/api/companies/5/reconcile", "company", "5", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/companies/5/reconcile", "admin", "1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	h.ledger.AssertExpectations(t)
}

func TestCompleteTicket(t *testing.T) {
	h := newHarness(t)
	creativeID := snowflake.ID(7)
	ticket := &ticketdomain.Ticket{ID: 30, CompanyID: 5, CreativeID: &creativeID, Status: ticketdomain.StatusDone}

	h.tickets.On("Get", mock.Anything, snowflake.ID(30)).Return(ticket, nil)
	h.tickets.On("Complete", mock.Anything, snowflake.ID(30)).
		Return(ticketdomain.CompletionResult{Ticket: *ticket, AlreadyCompleted: true}, nil).Once()

	rec := h.do(http.MethodPost, "/api/tickets/30/complete", "company", "6", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/tickets/30/complete", "company", "5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data ticketdomain.CompletionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.AlreadyCompleted)
	assert.Nil(t, resp.Data.PostedEntry)
}

func TestCompleteTicket_ErrorStatuses(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing_ticket", err: ticketdomain.ErrTicketNotFound, status: http.StatusNotFound},
		{name: "job_type_missing", err: ticketdomain.ErrJobTypeMissing, status: http.StatusUnprocessableEntity},
		{name: "lock_held", err: ticketdomain.ErrCompletionInProgress, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.tickets.On("Get", mock.Anything, snowflake.ID(30)).Return(&ticketdomain.Ticket{ID: 30, CompanyID: 5}, nil)
			h.tickets.On("Complete", mock.Anything, snowflake.ID(30)).Return(ticketdomain.CompletionResult{}, tc.err)

			rec := h.do(http.MethodPost, "/api/tickets/30/complete", "admin", "1", nil)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.err.Error(), decodeError(t, rec).Message)
		})
	}
}

func TestTransitionTicket_AssignedCreative(t *testing.T) {
	h := newHarness(t)
	creativeID := snowflake.ID(7)
	ticket := &ticketdomain.Ticket{ID: 30, CompanyID: 5, CreativeID: &creativeID, Status: ticketdomain.StatusInReview}
	done := *ticket
	done.Status = ticketdomain.StatusDone

	h.tickets.On("Get", mock.Anything, snowflake.ID(30)).Return(ticket, nil)
	h.tickets.On("Transition", mock.Anything, snowflake.ID(30), ticketdomain.StatusInProgress).
		Return(ticketdomain.TransitionResult{Ticket: *ticket}, nil).Once()
	h.tickets.On("Transition", mock.Anything, snowflake.ID(30), ticketdomain.StatusDone).
		Return(ticketdomain.TransitionResult{Ticket: done, Completion: &ticketdomain.CompletionResult{Ticket: done}}, nil).Once()

	rec := h.do(http.MethodPost, "/api/tickets/30/status", "creative", "8", gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The assigned creative cannot finish the ticket and pay themselves.
	rec = h.do(http.MethodPost, "/api/tickets/30/status", "creative", "7", gin.H{"status": "done"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = h.do(http.MethodPost, "/api/tickets/30/complete", "creative", "7", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/tickets/30/status", "creative", "7", gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(http.MethodPost, "/api/tickets/30/status", "company", "5", gin.H{"status": "done"})
	assert.Equal(t, http.StatusOK, rec.Code)

	h.tickets.AssertExpectations(t)
	h.tickets.AssertNumberOfCalls(t, "Transition", 2)
}

func TestTransitionTicket_DoneRejectedByServiceIsConflict(t *testing.T) {
	h := newHarness(t)
	ticket := &ticketdomain.Ticket{ID: 32, CompanyID: 5, Status: ticketdomain.StatusTodo}

	h.tickets.On("Get", mock.Anything, snowflake.ID(32)).Return(ticket, nil)
	h.tickets.On("Transition", mock.Anything, snowflake.ID(32), ticketdomain.StatusDone).
		Return(ticketdomain.TransitionResult{}, ticketdomain.ErrInvalidTransition).Once()

	rec := h.do(http.MethodPost, "/api/tickets/32/status", "company", "5", gin.H{"status": "done"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	h.tickets.AssertExpectations(t)
}

func TestCreateTicket_CompanyMustOwn(t *testing.T) {
	h := newHarness(t)
	h.tickets.On("Create", mock.Anything, mock.MatchedBy(func(req ticketdomain.CreateTicketRequest) bool {
		return req.CompanyID == 5 && req.JobTypeID != nil && *req.JobTypeID == 3 && req.Quantity == 2
	})).Return(ticketdomain.CreateResult{Ticket: ticketdomain.Ticket{ID: 31}}, nil).Once()

	body := gin.H{"company_id": "5", "job_type_id": "3", "title": "Reel", "quantity": 2}

	rec := h.do(http.MethodPost, "/api/tickets", "company", "6", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/tickets", "company", "5", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = h.do(http.MethodPost, "/api/tickets", "company", "5", gin.H{"company_id": "abc"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.tickets.AssertExpectations(t)
}

func TestRequestWithdrawal(t *testing.T) {
	h := newHarness(t)
	h.withdrawals.On("Request", mock.Anything, snowflake.ID(7), int64(99)).Return(nil, withdrawaldomain.ErrBelowMinimum).Once()
	h.withdrawals.On("Request", mock.Anything, snowflake.ID(7), int64(151)).Return(nil, withdrawaldomain.ErrInsufficientBalance).Once()
	h.withdrawals.On("Request", mock.Anything, snowflake.ID(7), int64(150)).
		Return(&withdrawaldomain.Withdrawal{ID: 40, CreativeID: 7, AmountTokens: 150, Status: withdrawaldomain.StatusPending}, nil).Once()

	rec := h.do(http.MethodPost, "/api/creatives/7/withdrawals", "creative", "8", gin.H{"amount_tokens": 150})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/creatives/7/withdrawals", "creative", "7", gin.H{"amount_tokens": 99})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "below_minimum", decodeError(t, rec).Message)

	rec = h.do(http.MethodPost, "/api/creatives/7/withdrawals", "creative", "7", gin.H{"amount_tokens": 151})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(http.MethodPost, "/api/creatives/7/withdrawals", "creative", "7", gin.H{"amount_tokens": 150})
	assert.Equal(t, http.StatusCreated, rec.Code)
	h.withdrawals.AssertExpectations(t)
}

func TestCancelWithdrawal_OwnerOnly(t *testing.T) {
	h := newHarness(t)
	w := &withdrawaldomain.Withdrawal{ID: 40, CreativeID: 7, Status: withdrawaldomain.StatusApproved}
	h.withdrawals.On("Get", mock.Anything, snowflake.ID(40)).Return(w, nil)
	h.withdrawals.On("Cancel", mock.Anything, snowflake.ID(40)).Return(nil, withdrawaldomain.ErrInvalidState).Once()

	rec := h.do(http.MethodPost, "/api/withdrawals/40/cancel", "creative", "8", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/withdrawals/40/cancel", "creative", "7", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	h.withdrawals.AssertExpectations(t)
}

func TestRejectWithdrawal_TrimsNote(t *testing.T) {
	h := newHarness(t)
	h.withdrawals.On("Reject", mock.Anything, snowflake.ID(40), "missing tax form").
		Return(&withdrawaldomain.Withdrawal{ID: 40, Status: withdrawaldomain.StatusRejected}, nil).Once()

	rec := h.do(http.MethodPost, "/api/withdrawals/40/reject", "creative", "7", gin.H{"note": "  missing tax form "})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodPost, "/api/withdrawals/40/reject", "admin", "1", gin.H{"note": "  missing tax form "})
	assert.Equal(t, http.StatusOK, rec.Code)
	h.withdrawals.AssertExpectations(t)
}

func TestGetStatement(t *testing.T) {
	h := newHarness(t)
	h.statements.On("Render", mock.Anything, snowflake.ID(7), mock.Anything, mock.Anything).
		Return([]byte("%PDF-1.3 test"), nil).Once()

	rec := h.do(http.MethodGet, "/api/creatives/7/statement.pdf?from=2026-03-01&to=2026-03-31", "creative", "7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "statement-7-2026-03-01.pdf")

	rec = h.do(http.MethodGet, "/api/creatives/7/statement.pdf?from=yesterday", "creative", "7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	h.statements.AssertExpectations(t)
}

func TestUnknownRoute(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/nope", "", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
