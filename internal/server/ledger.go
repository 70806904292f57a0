package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	"github.com/smallbiznis/tokenledger/pkg/db/pagination"
)

type postLedgerEntryRequest struct {
	OwnerKind string         `json:"owner_kind"`
	OwnerID   string         `json:"owner_id"`
	Direction string         `json:"direction"`
	Amount    int64          `json:"amount"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata"`
}

func (s *Server) PostLedgerEntry(c *gin.Context) {
	var req postLedgerEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ownerID, err := snowflake.ParseString(strings.TrimSpace(req.OwnerID))
	if err != nil || ownerID == 0 {
		AbortWithError(c, newValidationError("owner_id", "invalid_owner_id", "invalid owner_id"))
		return
	}

	reason := ledgerdomain.Reason(strings.TrimSpace(req.Reason))
	if reason.Reserved() {
		AbortWithError(c, ledgerdomain.ErrReservedReason)
		return
	}

	entry, err := s.ledgerSvc.Post(c.Request.Context(), ledgerdomain.PostEntryRequest{
		Account: ledgerdomain.Account{
			Kind: ledgerdomain.OwnerKind(strings.TrimSpace(req.OwnerKind)),
			ID:   ownerID,
		},
		Direction:                ledgerdomain.Direction(strings.ToLower(strings.TrimSpace(req.Direction))),
		Amount:                   req.Amount,
		Reason:                   reason,
		Metadata:                 req.Metadata,
		RequireSufficientBalance: true,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": entry})
}

func (s *Server) GetAccountBalance(c *gin.Context) {
	account, ok := s.accountFromPath(c)
	if !ok {
		return
	}

	balance, err := s.ledgerSvc.BalanceOf(c.Request.Context(), account)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"owner_kind": account.Kind,
		"owner_id":   account.ID.String(),
		"balance":    balance,
	}})
}

func (s *Server) ListAccountEntries(c *gin.Context) {
	account, ok := s.accountFromPath(c)
	if !ok {
		return
	}

	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.ledgerSvc.ListEntries(c.Request.Context(), ledgerdomain.ListEntriesRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Account: account,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Entries, "page_info": resp.PageInfo})
}

func (s *Server) ReconcileCompany(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.ledgerSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// accountFromPath parses /:kind/:id and enforces that company and creative
// actors only read their own account.
func (s *Server) accountFromPath(c *gin.Context) (ledgerdomain.Account, bool) {
	kind := ledgerdomain.OwnerKind(strings.ToLower(strings.TrimSpace(c.Param("kind"))))
	if !kind.Valid() {
		AbortWithError(c, ledgerdomain.ErrInvalidOwner)
		return ledgerdomain.Account{}, false
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return ledgerdomain.Account{}, false
	}

	role := authorization.RoleCreative
	if kind == ledgerdomain.OwnerKindCompany {
		role = authorization.RoleCompany
	}
	if err := requireOwner(c, role, id); err != nil {
		AbortWithError(c, err)
		return ledgerdomain.Account{}, false
	}
	return ledgerdomain.Account{Kind: kind, ID: id}, true
}
