package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads persisted policies through the gorm adapter and tops them
// up with the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, role, actorID, object, action string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	actorID = strings.TrimSpace(actorID)
	if !knownRole(role) || (role != RoleSystem && actorID == "") {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("role", role),
			zap.String("actor_id", actorID),
			zap.String("object", object),
			zap.String("action", action),
		)
		s.auditDenied(ctx, role, actorID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, role, actorID, object, action string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.AuditLog(ctx, "authorization.denied", "authorization", object, map[string]any{
		"object":   object,
		"action":   action,
		"role":     role,
		"actor_id": actorID,
	})
}

func knownRole(role string) bool {
	switch role {
	case RoleAdmin, RoleCompany, RoleCreative, RoleSystem:
		return true
	default:
		return false
	}
}

func roleSubject(role string) string {
	return "role:" + role
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// Creatives see their own money and request payouts.
		{"role:creative", ObjectAccount, ActionAccountViewBalance},
		{"role:creative", ObjectAccount, ActionAccountViewEntries},
		{"role:creative", ObjectPayoutTier, ActionPayoutTierView},
		{"role:creative", ObjectStatement, ActionStatementView},
		{"role:creative", ObjectTicket, ActionTicketView},
		{"role:creative", ObjectTicket, ActionTicketTransition},
		{"role:creative", ObjectWithdrawal, ActionWithdrawalRequest},
		{"role:creative", ObjectWithdrawal, ActionWithdrawalView},
		{"role:creative", ObjectWithdrawal, ActionWithdrawalCancel},

		// Companies buy work.
		{"role:company", ObjectAccount, ActionAccountViewBalance},
		{"role:company", ObjectAccount, ActionAccountViewEntries},
		{"role:company", ObjectTicket, ActionTicketCreate},
		{"role:company", ObjectTicket, ActionTicketView},
		{"role:company", ObjectTicket, ActionTicketTransition},
		{"role:company", ObjectTicket, ActionTicketComplete},

		// Admin-only operations.
		{"role:admin", ObjectLedgerEntry, ActionLedgerEntryPost},
		{"role:admin", ObjectCompany, ActionCompanyReconcile},
		{"role:admin", ObjectPayoutRule, ActionPayoutRuleView},
		{"role:admin", ObjectPayoutRule, ActionPayoutRuleManage},
		{"role:admin", ObjectTicket, ActionTicketAssign},
		{"role:admin", ObjectWithdrawal, ActionWithdrawalApprove},
		{"role:admin", ObjectWithdrawal, ActionWithdrawalReject},
		{"role:admin", ObjectWithdrawal, ActionWithdrawalPay},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},

		// Scheduled jobs.
		{"role:system", ObjectCompany, ActionCompanyReconcile},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}

	inherits := [][]string{
		{"role:admin", "role:company"},
		{"role:admin", "role:creative"},
	}
	for _, link := range inherits {
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}
