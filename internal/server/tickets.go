package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
)

type createTicketRequest struct {
	CompanyID              string `json:"company_id"`
	CreativeID             string `json:"creative_id"`
	JobTypeID              string `json:"job_type_id"`
	Title                  string `json:"title"`
	Quantity               int64  `json:"quantity"`
	TokenCostOverride      *int64 `json:"token_cost_override"`
	CreativePayoutOverride *int64 `json:"creative_payout_override"`
}

func (s *Server) CreateTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	companyID, err := snowflake.ParseString(strings.TrimSpace(req.CompanyID))
	if err != nil || companyID == 0 {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company_id"))
		return
	}
	creativeID, err := parseOptionalSnowflakeID(req.CreativeID)
	if err != nil {
		AbortWithError(c, newValidationError("creative_id", "invalid_creative_id", "invalid creative_id"))
		return
	}
	jobTypeID, err := parseOptionalSnowflakeID(req.JobTypeID)
	if err != nil {
		AbortWithError(c, newValidationError("job_type_id", "invalid_job_type_id", "invalid job_type_id"))
		return
	}
	if err := requireOwner(c, authorization.RoleCompany, companyID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ticketSvc.Create(c.Request.Context(), ticketdomain.CreateTicketRequest{
		CompanyID:              companyID,
		CreativeID:             creativeID,
		JobTypeID:              jobTypeID,
		Title:                  strings.TrimSpace(req.Title),
		Quantity:               req.Quantity,
		TokenCostOverride:      req.TokenCostOverride,
		CreativePayoutOverride: req.CreativePayoutOverride,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetTicket(c *gin.Context) {
	ticket, ok := s.ownedTicket(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

type transitionTicketRequest struct {
	Status string `json:"status"`
}

func (s *Server) TransitionTicket(c *gin.Context) {
	var req transitionTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticket, ok := s.ownedTicket(c)
	if !ok {
		return
	}

	to := ticketdomain.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	// Moving to DONE pays the creative, so it carries the same ownership rule
	// as the complete endpoint.
	if to == ticketdomain.StatusDone {
		if err := requireOwner(c, authorization.RoleCompany, ticket.CompanyID); err != nil {
			AbortWithError(c, err)
			return
		}
	}
	resp, err := s.ticketSvc.Transition(c.Request.Context(), ticket.ID, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CompleteTicket answers 200 for a replay; already_completed tells the
// caller nothing new was posted.
func (s *Server) CompleteTicket(c *gin.Context) {
	ticket, ok := s.ownedTicket(c)
	if !ok {
		return
	}
	if err := requireOwner(c, authorization.RoleCompany, ticket.CompanyID); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.ticketSvc.Complete(c.Request.Context(), ticket.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type assignTicketRequest struct {
	CreativeID string `json:"creative_id"`
}

func (s *Server) AssignTicket(c *gin.Context) {
	var req assignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ticketID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	creativeID, err := snowflake.ParseString(strings.TrimSpace(req.CreativeID))
	if err != nil || creativeID == 0 {
		AbortWithError(c, newValidationError("creative_id", "invalid_creative_id", "invalid creative_id"))
		return
	}

	ticket, err := s.ticketSvc.Assign(c.Request.Context(), ticketID, creativeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ticket})
}

// ownedTicket loads the ticket named by :id and checks the actor is its
// company or its assigned creative.
func (s *Server) ownedTicket(c *gin.Context) (*ticketdomain.Ticket, bool) {
	ticketID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	ticket, err := s.ticketSvc.Get(c.Request.Context(), ticketID)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if err := requireEitherOwner(c, ticket.CompanyID, ticket.CreativeID); err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return ticket, true
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, ErrInvalidRequest
	}
	return &parsed, nil
}
