package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
)

func (s *Server) GetPayoutTier(c *gin.Context) {
	creativeID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := requireOwner(c, authorization.RoleCreative, creativeID); err != nil {
		AbortWithError(c, err)
		return
	}

	progress, err := s.payoutTierSvc.Progress(c.Request.Context(), creativeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": progress})
}

func (s *Server) ListPayoutRules(c *gin.Context) {
	rules, err := s.payoutTierSvc.ListRules(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rules})
}

type upsertPayoutRuleRequest struct {
	Name                string `json:"name"`
	MinCompletedTickets int64  `json:"min_completed_tickets"`
	TimeWindowDays      int64  `json:"time_window_days"`
	PayoutPercent       int64  `json:"payout_percent"`
	IsActive            *bool  `json:"is_active"`
}

// UpsertPayoutRule creates a rule on POST and replaces one on PUT /:id.
func (s *Server) UpsertPayoutRule(c *gin.Context) {
	var req upsertPayoutRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	upsert := payouttierdomain.UpsertRuleRequest{
		Name:                strings.TrimSpace(req.Name),
		MinCompletedTickets: req.MinCompletedTickets,
		TimeWindowDays:      req.TimeWindowDays,
		PayoutPercent:       req.PayoutPercent,
		IsActive:            req.IsActive == nil || *req.IsActive,
	}
	if c.Param("id") != "" {
		id, err := parseIDParam(c, "id")
		if err != nil {
			AbortWithError(c, err)
			return
		}
		upsert.ID = &id
	}

	rule, err := s.payoutTierSvc.UpsertRule(c.Request.Context(), upsert)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if upsert.ID == nil {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": rule})
}
