package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"paygate/internal/domain"
	"paygate/internal/gateway/esewa"
	"paygate/internal/service"
)

// PaymentHandlerConfig holds redirect and verification settings for PaymentHandler.
type PaymentHandlerConfig struct {
	SuccessURL string // Empty means derive from the request host.
	FailureURL string
	AutoVerify bool // Verify with the gateway as soon as a success callback arrives.
}

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
	gateway        *esewa.Client
	cfg            PaymentHandlerConfig
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService, gateway *esewa.Client, cfg PaymentHandlerConfig) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		gateway:        gateway,
		cfg:            cfg,
	}
}

// InitiatePaymentRequest is the HTTP request body for starting a payment.
type InitiatePaymentRequest struct {
	Amount   decimal.Decimal   `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

// InitiatePaymentResponse is the HTTP response for a started payment.
type InitiatePaymentResponse struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
	RedirectForm  string `json:"redirectForm"`
}

// VerifyPaymentRequest is the HTTP request body for verifying a payment.
type VerifyPaymentRequest struct {
	TransactionID string `json:"transactionId" binding:"required,txnid"`
}

// StatusResponse is the HTTP response for the status endpoint.
type StatusResponse struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
}

// IntentResponse is a full snapshot of a payment intent.
type IntentResponse struct {
	TransactionID        string            `json:"transactionId"`
	Amount               string            `json:"amount"`
	State                string            `json:"state"`
	ReferenceID          string            `json:"referenceId,omitempty"`
	GatewayAmount        string            `json:"gatewayAmount,omitempty"`
	FailureReason        string            `json:"failureReason,omitempty"`
	VerificationAttempts int               `json:"verificationAttempts"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	CreatedAt            string            `json:"createdAt"`
	UpdatedAt            string            `json:"updatedAt"`
}

func newIntentResponse(intent *domain.PaymentIntent) IntentResponse {
	resp := IntentResponse{
		TransactionID:        intent.TransactionID,
		Amount:               intent.Amount.String(),
		State:                string(intent.State),
		ReferenceID:          intent.ReferenceID,
		FailureReason:        intent.FailureReason,
		VerificationAttempts: intent.VerificationAttempts,
		Metadata:             intent.Metadata,
		CreatedAt:            intent.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            intent.UpdatedAt.Format(time.RFC3339),
	}
	if intent.GatewayAmount != 0 {
		resp.GatewayAmount = intent.GatewayAmount.String()
	}
	return resp
}

// Initiate handles POST /payments/initiate
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "InvalidRequest", "invalid request body")
		return
	}

	amount, err := domain.AmountFromDecimal(req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	intent, err := h.paymentService.Initiate(c.Request.Context(), service.InitiateRequest{
		Amount:   amount,
		Metadata: req.Metadata,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	form, err := esewa.RenderForm(h.gateway.FormData(intent,
		h.callbackURL(c, h.cfg.SuccessURL, "success"),
		h.callbackURL(c, h.cfg.FailureURL, "failure"),
	))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, InitiatePaymentResponse{
		TransactionID: intent.TransactionID,
		State:         string(intent.State),
		RedirectForm:  form,
	})
}

// SuccessCallback handles GET /payments/callback/success
func (h *PaymentHandler) SuccessCallback(c *gin.Context) {
	transactionID := queryAny(c, "transactionId", "oid")
	referenceID := queryAny(c, "referenceId", "refId")

	// A missing amount is left at zero; the service only requires it when recording the callback.
	var amount domain.Amount
	if raw := queryAny(c, "amount", "amt"); raw != "" {
		parsed, err := domain.ParseAmount(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		amount = parsed
	}

	ctx := c.Request.Context()

	intent, err := h.paymentService.HandleCallback(ctx, service.CallbackRequest{
		TransactionID: transactionID,
		Outcome:       domain.CallbackSuccess,
		GatewayAmount: amount,
		ReferenceID:   referenceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if h.cfg.AutoVerify && intent.State == domain.IntentStateVerifying {
		verified, err := h.paymentService.Verify(ctx, intent.TransactionID)
		if err != nil {
			respondIntentError(c, verified, err)
			return
		}
		intent = verified
	}

	respondJSON(c, http.StatusOK, newIntentResponse(intent))
}

// FailureCallback handles GET /payments/callback/failure
func (h *PaymentHandler) FailureCallback(c *gin.Context) {
	intent, err := h.paymentService.HandleCallback(c.Request.Context(), service.CallbackRequest{
		TransactionID: queryAny(c, "transactionId", "pid"),
		Outcome:       domain.CallbackFailure,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newIntentResponse(intent))
}

// Verify handles POST /payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "InvalidRequest", "transactionId is required")
		return
	}

	intent, err := h.paymentService.Verify(c.Request.Context(), req.TransactionID)
	if err != nil {
		respondIntentError(c, intent, err)
		return
	}

	respondJSON(c, http.StatusOK, newIntentResponse(intent))
}

// Status handles GET /payments/status/:transactionId
func (h *PaymentHandler) Status(c *gin.Context) {
	intent, err := h.paymentService.GetIntent(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, StatusResponse{
		TransactionID: intent.TransactionID,
		State:         string(intent.State),
	})
}

// callbackURL returns the configured URL or one derived from the request host.
func (h *PaymentHandler) callbackURL(c *gin.Context, configured, outcome string) string {
	if configured != "" {
		return configured
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return fmt.Sprintf("%s://%s/payments/callback/%s", scheme, c.Request.Host, outcome)
}

// queryAny returns the first non-empty query parameter among keys.
func queryAny(c *gin.Context, keys ...string) string {
	for _, key := range keys {
		if v := c.Query(key); v != "" {
			return v
		}
	}
	return ""
}
