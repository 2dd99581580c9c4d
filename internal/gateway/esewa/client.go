// Package esewa talks to the eSewa ePay v1 API: it builds the checkout form and verifies transactions.
package esewa

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paygate/internal/domain"
	"paygate/internal/service"
)

// maxResponseBytes caps how much of a verification response is read.
const maxResponseBytes = 64 << 10

// Config holds merchant credentials and endpoints. It is passed in at construction; nothing is read globally.
type Config struct {
	MerchantCode string
	FormURL      string
	VerifyURL    string
}

// Client implements service.GatewayVerifier against eSewa.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

var _ service.GatewayVerifier = (*Client)(nil)

// NewClient creates a new eSewa client. A nil httpClient gets a client with a 15s timeout.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{cfg: cfg, httpClient: httpClient}
}

// verifyResponse is the XML body returned by the transrec endpoint.
type verifyResponse struct {
	XMLName      xml.Name `xml:"response"`
	ResponseCode string   `xml:"response_code"`
}

// Verify asks eSewa whether the transaction was paid.
// eSewa echoes no amount; a "Success" answer confirms the amount that was sent.
func (c *Client) Verify(ctx context.Context, req service.VerifyRequest) (service.VerificationOutcome, error) {
	form := url.Values{}
	form.Set("amt", req.Amount.String())
	form.Set("scd", c.cfg.MerchantCode)
	form.Set("rid", req.ReferenceID)
	form.Set("pid", req.TransactionID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return service.VerificationOutcome{}, fmt.Errorf("esewa verify request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return service.VerificationOutcome{}, fmt.Errorf("esewa verify: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return service.VerificationOutcome{}, fmt.Errorf("esewa verify read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return service.VerificationOutcome{}, fmt.Errorf("esewa verify failed: http=%d body=%s", resp.StatusCode, string(raw))
	}

	if !isSuccess(raw) {
		return service.VerificationOutcome{Confirmed: false}, nil
	}

	return service.VerificationOutcome{Confirmed: true, AmountConfirmed: req.Amount}, nil
}

// isSuccess reads the response code, falling back to a substring match for non-XML bodies.
func isSuccess(raw []byte) bool {
	var parsed verifyResponse
	if err := xml.Unmarshal(raw, &parsed); err == nil {
		return strings.EqualFold(strings.TrimSpace(parsed.ResponseCode), "success")
	}
	return strings.Contains(string(raw), "Success")
}

// FormData fills the checkout form for an intent.
func (c *Client) FormData(intent *domain.PaymentIntent, successURL, failureURL string) FormData {
	return FormData{
		Action:      c.cfg.FormURL,
		TotalAmount: intent.Amount,
		Amount:      intent.Amount,
		MerchantID:  c.cfg.MerchantCode,
		ProductID:   intent.TransactionID,
		SuccessURL:  successURL,
		FailureURL:  failureURL,
	}
}
