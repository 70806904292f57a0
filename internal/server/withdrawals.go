package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
)

type requestWithdrawalRequest struct {
	AmountTokens int64 `json:"amount_tokens"`
}

func (s *Server) RequestWithdrawal(c *gin.Context) {
	creativeID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := requireOwner(c, authorization.RoleCreative, creativeID); err != nil {
		AbortWithError(c, err)
		return
	}

	var req requestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	w, err := s.withdrawalSvc.Request(c.Request.Context(), creativeID, req.AmountTokens)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": w})
}

func (s *Server) ListWithdrawals(c *gin.Context) {
	creativeID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := requireOwner(c, authorization.RoleCreative, creativeID); err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.withdrawalSvc.ListByCreative(c.Request.Context(), creativeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetWithdrawal(c *gin.Context) {
	w, ok := s.ownedWithdrawal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (s *Server) CancelWithdrawal(c *gin.Context) {
	w, ok := s.ownedWithdrawal(c)
	if !ok {
		return
	}
	s.respondWithdrawal(c, func() (*withdrawaldomain.Withdrawal, error) {
		return s.withdrawalSvc.Cancel(c.Request.Context(), w.ID)
	})
}

func (s *Server) ApproveWithdrawal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondWithdrawal(c, func() (*withdrawaldomain.Withdrawal, error) {
		return s.withdrawalSvc.Approve(c.Request.Context(), id)
	})
}

type rejectWithdrawalRequest struct {
	Note string `json:"note"`
}

func (s *Server) RejectWithdrawal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req rejectWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	s.respondWithdrawal(c, func() (*withdrawaldomain.Withdrawal, error) {
		return s.withdrawalSvc.Reject(c.Request.Context(), id, strings.TrimSpace(req.Note))
	})
}

func (s *Server) PayWithdrawal(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.respondWithdrawal(c, func() (*withdrawaldomain.Withdrawal, error) {
		return s.withdrawalSvc.MarkPaid(c.Request.Context(), id)
	})
}

func (s *Server) respondWithdrawal(c *gin.Context, fn func() (*withdrawaldomain.Withdrawal, error)) {
	w, err := fn()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": w})
}

func (s *Server) ownedWithdrawal(c *gin.Context) (*withdrawaldomain.Withdrawal, bool) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}

	w, err := s.withdrawalSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if err := requireOwner(c, authorization.RoleCreative, w.CreativeID); err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return w, true
}
