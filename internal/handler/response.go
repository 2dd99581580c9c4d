package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paygate/internal/domain"
	"paygate/internal/repository"
	"paygate/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error  string          `json:"error"`
	Kind   string          `json:"kind"`
	Intent *IntentResponse `json:"intent,omitempty"`
}

// errorKind pairs an error with its HTTP status and the kind reported to clients.
type errorKind struct {
	err    error
	status int
	kind   string
}

// errorKinds is checked in order; the first match wins.
var errorKinds = []errorKind{
	// Validation errors - Bad Request
	{service.ErrInvalidAmount, http.StatusBadRequest, "InvalidAmount"},
	{domain.ErrInvalidAmountFormat, http.StatusBadRequest, "InvalidAmount"},
	{service.ErrUnknownTransaction, http.StatusBadRequest, "UnknownTransaction"},
	{service.ErrInvalidCallback, http.StatusBadRequest, "InvalidCallback"},
	{service.ErrInvalidCart, http.StatusBadRequest, "InvalidCart"},
	{service.ErrAmountMismatch, http.StatusBadRequest, "AmountMismatch"},

	// Conflict errors
	{service.ErrRaceCondition, http.StatusConflict, "RaceCondition"},
	{repository.ErrConflict, http.StatusConflict, "ConflictError"},
	{repository.ErrDuplicateKey, http.StatusConflict, "DuplicateKey"},
	{domain.ErrInvalidTransition, http.StatusConflict, "InvalidTransition"},
	{service.ErrCallbackPending, http.StatusConflict, "CallbackPending"},
	{service.ErrNotStale, http.StatusConflict, "NotStale"},

	// Upstream gateway errors
	{service.ErrTransport, http.StatusBadGateway, "TransportError"},
}

// mapError maps service/repository errors to an HTTP status code and error kind.
func mapError(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.status, k.kind
		}
	}
	return http.StatusInternalServerError, "Internal"
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	respondIntentError(c, nil, err)
}

// respondIntentError sends an error response that also carries the intent snapshot, if any.
func respondIntentError(c *gin.Context, intent *domain.PaymentIntent, err error) {
	_ = c.Error(err)

	code, kind := mapError(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		message = "internal server error"
	}

	resp := ErrorResponse{Error: message, Kind: kind}
	if intent != nil {
		snapshot := newIntentResponse(intent)
		resp.Intent = &snapshot
	}

	c.JSON(code, resp)
}

// respondBadRequest sends a 400 for malformed input that never reached a service.
func respondBadRequest(c *gin.Context, kind, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message, Kind: kind})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}
