package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	"github.com/smallbiznis/tokenledger/internal/config"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/internal/observability"
	obslogger "github.com/smallbiznis/tokenledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tokenledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tokenledger/internal/observability/tracing"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"github.com/smallbiznis/tokenledger/internal/statement"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	log           *zap.Logger
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	ledgerSvc     ledgerdomain.Service
	payoutTierSvc payouttierdomain.Service
	statementSvc  statement.Service
	ticketSvc     ticketdomain.Service
	withdrawalSvc withdrawaldomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Log           *zap.Logger
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	LedgerSvc     ledgerdomain.Service
	PayoutTierSvc payouttierdomain.Service
	StatementSvc  statement.Service
	TicketSvc     ticketdomain.Service
	WithdrawalSvc withdrawaldomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		log:           p.Log.Named("http.server"),
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		ledgerSvc:     p.LedgerSvc,
		payoutTierSvc: p.PayoutTierSvc,
		statementSvc:  p.StatementSvc,
		ticketSvc:     p.TicketSvc,
		withdrawalSvc: p.WithdrawalSvc,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", ActorFromHeaders())

	// -------- Ledger --------
	api.POST("/ledger/entries", s.authorize(authorization.ObjectLedgerEntry, authorization.ActionLedgerEntryPost), s.PostLedgerEntry)
	api.GET("/accounts/:kind/:id/balance", s.authorize(authorization.ObjectAccount, authorization.ActionAccountViewBalance), s.GetAccountBalance)
	api.GET("/accounts/:kind/:id/entries", s.authorize(authorization.ObjectAccount, authorization.ActionAccountViewEntries), s.ListAccountEntries)
	api.POST("/companies/:id/reconcile", s.authorize(authorization.ObjectCompany, authorization.ActionCompanyReconcile), s.ReconcileCompany)

	// -------- Payout tiers --------
	api.GET("/creatives/:id/payout-tier", s.authorize(authorization.ObjectPayoutTier, authorization.ActionPayoutTierView), s.GetPayoutTier)
	api.GET("/payout-rules", s.authorize(authorization.ObjectPayoutRule, authorization.ActionPayoutRuleView), s.ListPayoutRules)
	api.POST("/payout-rules", s.authorize(authorization.ObjectPayoutRule, authorization.ActionPayoutRuleManage), s.UpsertPayoutRule)
	api.PUT("/payout-rules/:id", s.authorize(authorization.ObjectPayoutRule, authorization.ActionPayoutRuleManage), s.UpsertPayoutRule)

	// -------- Statements --------
	api.GET("/creatives/:id/statement.pdf", s.authorize(authorization.ObjectStatement, authorization.ActionStatementView), s.GetStatement)

	// -------- Tickets --------
	api.POST("/tickets", s.authorize(authorization.ObjectTicket, authorization.ActionTicketCreate), s.CreateTicket)
	api.GET("/tickets/:id", s.authorize(authorization.ObjectTicket, authorization.ActionTicketView), s.GetTicket)
	api.POST("/tickets/:id/status", s.authorize(authorization.ObjectTicket, authorization.ActionTicketTransition), s.TransitionTicket)
	api.POST("/tickets/:id/complete", s.authorize(authorization.ObjectTicket, authorization.ActionTicketComplete), s.CompleteTicket)
	api.POST("/tickets/:id/assign", s.authorize(authorization.ObjectTicket, authorization.ActionTicketAssign), s.AssignTicket)

	// -------- Withdrawals --------
	api.POST("/creatives/:id/withdrawals", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalRequest), s.RequestWithdrawal)
	api.GET("/creatives/:id/withdrawals", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalView), s.ListWithdrawals)
	api.GET("/withdrawals/:id", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalView), s.GetWithdrawal)
	api.POST("/withdrawals/:id/cancel", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalCancel), s.CancelWithdrawal)
	api.POST("/withdrawals/:id/approve", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalApprove), s.ApproveWithdrawal)
	api.POST("/withdrawals/:id/reject", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalReject), s.RejectWithdrawal)
	api.POST("/withdrawals/:id/pay", s.authorize(authorization.ObjectWithdrawal, authorization.ActionWithdrawalPay), s.PayWithdrawal)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
