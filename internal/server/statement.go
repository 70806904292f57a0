package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tokenledger/internal/authorization"
)

// GetStatement streams a PDF for [from, to). Without a range it covers the
// current calendar month.
func (s *Server) GetStatement(c *gin.Context) {
	creativeID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := requireOwner(c, authorization.RoleCreative, creativeID); err != nil {
		AbortWithError(c, err)
		return
	}

	from, to := monthBounds(time.Now())
	if parsed, err := parseOptionalTime(c.Query("from"), false); err != nil {
		AbortWithError(c, newValidationError("from", "invalid_from", "invalid from"))
		return
	} else if parsed != nil {
		from = *parsed
	}
	if parsed, err := parseOptionalTime(c.Query("to"), true); err != nil {
		AbortWithError(c, newValidationError("to", "invalid_to", "invalid to"))
		return
	} else if parsed != nil {
		to = *parsed
	}

	body, err := s.statementSvc.Render(c.Request.Context(), creativeID, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	filename := fmt.Sprintf("statement-%s-%s.pdf", creativeID, from.Format(dateOnlyLayout))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/pdf", body)
}
