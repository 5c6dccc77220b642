package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bullion/compliance-service/internal/domain"
	"github.com/bullion/compliance-service/internal/identity"
	"github.com/bullion/compliance-service/internal/pkg/logger"
)

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidSection, http.StatusBadRequest, "invalid_section"},
	{domain.ErrInvalidCategory, http.StatusBadRequest, "invalid_category"},
	{domain.ErrInvalidDecision, http.StatusBadRequest, "invalid_decision"},
	{domain.ErrMissingFields, http.StatusBadRequest, "missing_fields"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrActiveInvestigationExists, http.StatusConflict, "active_investigation_exists"},
	{domain.ErrCaseClosed, http.StatusConflict, "case_closed"},
	{domain.ErrInvalidState, http.StatusConflict, "invalid_state"},
	{domain.ErrApprovalNotRequired, http.StatusConflict, "approval_not_required"},
	{domain.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
	{domain.ErrApprovalRequired, http.StatusUnprocessableEntity, "approval_required"},
	{domain.ErrNoRateAvailable, http.StatusServiceUnavailable, "no_rate_available"},
	{identity.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
}

// StatusFor maps a service error onto an HTTP status and a stable code
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// ErrorHandler renders domain errors as ErrorResponse bodies
func ErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		requestID := c.Response().Header().Get(echo.HeaderXRequestID)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			msg, ok := he.Message.(string)
			if !ok {
				msg = http.StatusText(he.Code)
			}
			_ = c.JSON(he.Code, ErrorResponse{Error: msg, Code: "http_error", RequestID: requestID})
			return
		}

		status, code := StatusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			log.WithContext(c.Request().Context()).Error("request failed",
				logger.StringField("path", c.Path()),
				logger.ErrorField(err),
			)
			message = "internal server error"
		}
		_ = c.JSON(status, ErrorResponse{Error: message, Code: code, RequestID: requestID})
	}
}
