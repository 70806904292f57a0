package authorization

import (
	"context"
	"errors"
)

const (
	RoleAdmin    = "admin"
	RoleCompany  = "company"
	RoleCreative = "creative"
	RoleSystem   = "system"
)

const (
	ObjectLedgerEntry = "ledger_entry"
	ObjectAccount     = "account"
	ObjectCompany     = "company"
	ObjectPayoutTier  = "payout_tier"
	ObjectPayoutRule  = "payout_rule"
	ObjectStatement   = "statement"
	ObjectTicket      = "ticket"
	ObjectWithdrawal  = "withdrawal"
	ObjectAuditLog    = "audit_log"
)

const (
	ActionLedgerEntryPost = "ledger_entry.post"

	ActionAccountViewBalance = "account.view_balance"
	ActionAccountViewEntries = "account.view_entries"

	ActionCompanyReconcile = "company.reconcile"

	ActionPayoutTierView   = "payout_tier.view"
	ActionPayoutRuleView   = "payout_rule.view"
	ActionPayoutRuleManage = "payout_rule.manage"

	ActionStatementView = "statement.view"

	ActionTicketCreate     = "ticket.create"
	ActionTicketView       = "ticket.view"
	ActionTicketTransition = "ticket.transition"
	ActionTicketComplete   = "ticket.complete"
	ActionTicketAssign     = "ticket.assign"

	ActionWithdrawalRequest = "withdrawal.request"
	ActionWithdrawalView    = "withdrawal.view"
	ActionWithdrawalCancel  = "withdrawal.cancel"
	ActionWithdrawalApprove = "withdrawal.approve"
	ActionWithdrawalReject  = "withdrawal.reject"
	ActionWithdrawalPay     = "withdrawal.pay"

	ActionAuditLogView = "audit_log.view"
)

// Service checks whether the acting role may perform action on object.
// Ownership of the addressed record is checked by the caller.
type Service interface {
	Authorize(ctx context.Context, role, actorID, object, action string) error
}

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrForbidden     = errors.New("forbidden")
)
