package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/tokenledger/internal/audit/domain"
	"github.com/smallbiznis/tokenledger/internal/authorization"
	ledgerdomain "github.com/smallbiznis/tokenledger/internal/ledger/domain"
	payouttierdomain "github.com/smallbiznis/tokenledger/internal/payouttier/domain"
	"github.com/smallbiznis/tokenledger/internal/statement"
	ticketdomain "github.com/smallbiznis/tokenledger/internal/ticket/domain"
	withdrawaldomain "github.com/smallbiznis/tokenledger/internal/withdrawal/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

const (
	errorTypeValidation    = "validation_error"
	errorTypeUnauthorized  = "unauthorized"
	errorTypeForbidden     = "forbidden"
	errorTypeNotFound      = "not_found"
	errorTypeConflict      = "conflict"
	errorTypeUnprocessable = "unprocessable"
	errorTypeInternal      = "internal_error"
)

type errorClass struct {
	status int
	kind   string
	errs   []error
}

// errorClasses is checked in order; the first sentinel that matches decides
// the status and becomes the message.
var errorClasses = []errorClass{
	{http.StatusBadRequest, errorTypeValidation, []error{
		ErrInvalidRequest,
		ledgerdomain.ErrInvalidAmount,
		ledgerdomain.ErrInvalidOwner,
		ledgerdomain.ErrInvalidDirection,
		ledgerdomain.ErrInvalidReason,
		ledgerdomain.ErrReservedReason,
		ledgerdomain.ErrInvalidPageToken,
		ledgerdomain.ErrInvalidPeriod,
		statement.ErrPeriodTooLong,
		payouttierdomain.ErrInvalidRuleName,
		payouttierdomain.ErrInvalidRuleWindow,
		payouttierdomain.ErrInvalidRuleMinimum,
		payouttierdomain.ErrInvalidRulePercent,
		ticketdomain.ErrInvalidStatus,
		ticketdomain.ErrInvalidQuantity,
		ticketdomain.ErrInvalidTitle,
		ticketdomain.ErrInvalidOverride,
		withdrawaldomain.ErrInvalidAmount,
		withdrawaldomain.ErrBelowMinimum,
		auditdomain.ErrInvalidPageToken,
		auditdomain.ErrInvalidAction,
	}},
	{http.StatusUnauthorized, errorTypeUnauthorized, []error{
		ErrUnauthorized,
		authorization.ErrInvalidActor,
	}},
	{http.StatusForbidden, errorTypeForbidden, []error{
		ErrForbidden,
		authorization.ErrForbidden,
	}},
	{http.StatusNotFound, errorTypeNotFound, []error{
		ErrNotFound,
		ledgerdomain.ErrAccountNotFound,
		payouttierdomain.ErrRuleNotFound,
		ticketdomain.ErrTicketNotFound,
		ticketdomain.ErrCompanyNotFound,
		ticketdomain.ErrCreativeNotFound,
		withdrawaldomain.ErrNotFound,
		withdrawaldomain.ErrCreativeNotFound,
		gorm.ErrRecordNotFound,
	}},
	{http.StatusConflict, errorTypeConflict, []error{
		ticketdomain.ErrInvalidTransition,
		ticketdomain.ErrCompletionInProgress,
		withdrawaldomain.ErrInvalidState,
		ledgerdomain.ErrDuplicatePayout,
	}},
	{http.StatusUnprocessableEntity, errorTypeUnprocessable, []error{
		ticketdomain.ErrJobTypeMissing,
		ticketdomain.ErrInsufficientBalance,
		ledgerdomain.ErrInsufficientBalance,
		withdrawaldomain.ErrInsufficientBalance,
	}},
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    errorTypeInternal,
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    errorTypeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if class, sentinel, ok := classify(err); ok {
		return class.status, errorPayload{
			Type:    class.kind,
			Message: sentinel.Error(),
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    errorTypeInternal,
		Message: "internal server error",
	}
}

func classify(err error) (errorClass, error, bool) {
	for _, class := range errorClasses {
		for _, sentinel := range class.errs {
			if errors.Is(err, sentinel) {
				return class, sentinel, true
			}
		}
	}
	return errorClass{}, nil, false
}

// classifyErrorForLog returns the error type and code attached to request logs.
func classifyErrorForLog(err error) (string, string) {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil && len(vErr.Errors) > 0 {
		return errorTypeValidation, vErr.Errors[0].Code
	}
	if class, sentinel, ok := classify(err); ok {
		return class.kind, sentinel.Error()
	}
	return errorTypeInternal, errorTypeInternal
}
