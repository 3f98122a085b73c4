package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/revshare/internal/authorization"
	ingestiondomain "github.com/smallbiznis/revshare/internal/ingestion/domain"
	invoicedomain "github.com/smallbiznis/revshare/internal/invoice/domain"
	pricingdomain "github.com/smallbiznis/revshare/internal/pricing/domain"
	revenuedomain "github.com/smallbiznis/revshare/internal/revenue/domain"
	royaltydomain "github.com/smallbiznis/revshare/internal/royalty/domain"
	successfeedomain "github.com/smallbiznis/revshare/internal/successfee/domain"
	tenantdomain "github.com/smallbiznis/revshare/internal/tenant/domain"
	"github.com/smallbiznis/revshare/pkg/db/pagination"
	"github.com/smallbiznis/revshare/pkg/tenantctx"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidSignature   = errors.New("invalid_signature")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// reasonError carries a machine-readable reason alongside a sentinel.
type reasonError struct {
	err    error
	reason string
}

func (e *reasonError) Error() string { return e.err.Error() + ": " + e.reason }
func (e *reasonError) Unwrap() error { return e.err }

func invalidRequest(reason string) error {
	return &reasonError{err: ErrInvalidRequest, reason: reason}
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var rejection *ingestiondomain.Rejection
	if errors.As(err, &rejection) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "rejected",
			Message: rejection.Error(),
			Reason:  string(rejection.Reason),
		}
	}

	reason := ""
	var rErr *reasonError
	if errors.As(err, &rErr) {
		reason = rErr.reason
	}

	switch {
	case isValidationError(err):
		if reason == "" {
			reason = err.Error()
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Reason:  reason,
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidSignature),
		errors.Is(err, authorization.ErrInvalidActor):
		if reason == "" && errors.Is(err, ErrInvalidSignature) {
			reason = ErrInvalidSignature.Error()
		}
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
			Reason:  reason,
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, tenantctx.ErrScopeMismatch),
		errors.Is(err, royaltydomain.ErrOperatorScope):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
			Reason:  notFoundReason(err),
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, royaltydomain.ErrRunInProgress),
		errors.Is(err, revenuedomain.ErrNotReversible),
		errors.Is(err, revenuedomain.ErrCallIDConflict):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
			Reason:  conflictReason(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, revenuedomain.ErrLedgerWriteConflict),
		errors.Is(err, invoicedomain.ErrProviderUnavailable),
		errors.Is(err, invoicedomain.ErrProviderTimeout):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, revenuedomain.ErrInvalidTenant),
		errors.Is(err, revenuedomain.ErrInvalidCallID),
		errors.Is(err, revenuedomain.ErrInvalidPeriod),
		errors.Is(err, royaltydomain.ErrInvalidPeriod),
		errors.Is(err, tenantdomain.ErrInvalidTenantID),
		errors.Is(err, pricingdomain.ErrInvalidLocations):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrUnknownTenant),
		errors.Is(err, revenuedomain.ErrEventNotFound),
		errors.Is(err, successfeedomain.ErrChargeNotFound),
		errors.Is(err, pricingdomain.ErrUnknownTier),
		errors.Is(err, pricingdomain.ErrTierNotConfigured):
		return true
	default:
		return false
	}
}

func notFoundReason(err error) string {
	switch {
	case errors.Is(err, tenantdomain.ErrUnknownTenant):
		return tenantdomain.ErrUnknownTenant.Error()
	case errors.Is(err, pricingdomain.ErrUnknownTier):
		return pricingdomain.ErrUnknownTier.Error()
	case errors.Is(err, pricingdomain.ErrTierNotConfigured):
		return pricingdomain.ErrTierNotConfigured.Error()
	default:
		return ""
	}
}

func conflictReason(err error) string {
	switch {
	case errors.Is(err, royaltydomain.ErrRunInProgress):
		return royaltydomain.ErrRunInProgress.Error()
	case errors.Is(err, revenuedomain.ErrNotReversible):
		return revenuedomain.ErrNotReversible.Error()
	case errors.Is(err, revenuedomain.ErrCallIDConflict):
		return revenuedomain.ErrCallIDConflict.Error()
	default:
		return ""
	}
}

// classifyErrorForLog feeds the request logger's error_type and reason.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	reason := payload.Reason
	if reason == "" {
		reason = payload.Type
	}
	return payload.Type, reason
}
