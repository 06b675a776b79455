package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telloo/internal/types"
)

// resendAPIBase is the default Resend API base URL.
// Overridable in tests via ResendClientConfig.BaseURL.
const resendAPIBase = "https://api.resend.com"

// ResendClientConfig holds the configuration for creating a ResendClient.
type ResendClientConfig struct {
	APIKey  string
	BaseURL string // Override for testing; defaults to resendAPIBase
	Logger  *slog.Logger
}

// ResendClient implements EmailProvider by making direct HTTP calls to the
// Resend Emails API through BaseClient. This routes all requests through the
// platform's resilience infrastructure (circuit breaker, retries, error
// mapping) and makes testing with httptest straightforward.
type ResendClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewResendClient creates a new ResendClient. The httpClient timeout should
// match the configured email send timeout.
//
// Retries are disabled: a send that fails (or times out after the provider
// already accepted it) must not be re-POSTed, or the recipient can receive
// the same email twice. Each Send makes at most one delivery attempt; the
// BaseClient is kept for circuit breaking and error mapping only.
func NewResendClient(
	httpClient *http.Client,
	cfg ResendClientConfig,
) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"resend",
		RetryPolicy{
			MaxRetries: 0,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Telloo/1.0",
		WithSleepFunc(time.Sleep),
	)

	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// NewResendClientWithBase creates a ResendClient with a pre-configured
// BaseClient. Useful for testing when you want to control the BaseClient
// configuration (e.g., disable retries).
func NewResendClientWithBase(
	base *BaseClient,
	cfg ResendClientConfig,
) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = resendAPIBase
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResendClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ---------------------------------------------------------------------------
// EmailProvider Implementation
// ---------------------------------------------------------------------------

// Send transmits an email using the Resend POST /emails endpoint. It maps the
// domain types.SendInput to the Resend JSON payload and returns the provider
// message ID from the response body on success.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient suppressed or domain unverified)
//   - 429 Too Many Requests -> ErrCodeUpstreamRateLimited (via BaseClient, no retry)
//   - 5xx -> ErrCodeUpstreamUnavailable (via BaseClient, no retry)
//   - Other 4xx -> types.ErrCodeUpstreamEmailProvider
func (r *ResendClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	payload := r.buildMailPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal Resend mail payload",
			err,
		)
	}

	reqURL := r.baseURL + "/emails"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Resend send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.base.Do(req)
	if err != nil {
		return "", r.wrapResendError("Send", err)
	}
	defer resp.Body.Close()

	// Resend returns 200 OK with {"id": "..."} on success.
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ok resendSendResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ok); decodeErr != nil {
			// Delivery was accepted; a missing ID only degrades correlation.
			return "", nil
		}
		return ok.ID, nil
	}

	return "", r.handleErrorResponse(resp, "Send")
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

// resendMailPayload represents the Resend POST /emails JSON request body.
type resendMailPayload struct {
	From    string            `json:"from"`
	To      []string          `json:"to"`
	Subject string            `json:"subject"`
	HTML    string            `json:"html,omitempty"`
	Text    string            `json:"text,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// resendSendResponse is the success body of POST /emails.
type resendSendResponse struct {
	ID string `json:"id"`
}

// buildMailPayload maps a domain types.SendInput to the Resend payload.
// The From field uses the "Name <address>" display form when a sender name
// is configured.
func (r *ResendClient) buildMailPayload(input types.SendInput) resendMailPayload {
	from := input.From.Address
	if input.From.Name != "" {
		from = fmt.Sprintf("%s <%s>", input.From.Name, input.From.Address)
	}

	payload := resendMailPayload{
		From:    from,
		To:      []string{input.To},
		Subject: input.Subject,
		HTML:    input.BodyHTML,
		Text:    input.BodyText,
	}

	// Correlate the provider message with the originating post.
	if input.ReferenceID != "" {
		payload.Headers = map[string]string{
			"X-Entity-Ref-ID": input.ReferenceID,
		}
	}

	return payload
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// resendErrorResponse represents the JSON error body returned by Resend.
type resendErrorResponse struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// handleErrorResponse reads a Resend error response and maps it to a
// types.AppError.
func (r *ResendClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: Resend returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var rsErr resendErrorResponse
	errMsg := ""
	if jsonErr := json.Unmarshal(body, &rsErr); jsonErr == nil && rsErr.Message != "" {
		errMsg = rsErr.Message
	} else {
		errMsg = string(body)
	}

	return r.mapResendError(operation, resp.StatusCode, errMsg)
}

// mapResendError translates a Resend HTTP error into a types.AppError.
func (r *ResendClient) mapResendError(operation string, statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		// 403: Recipient suppressed or sending domain not verified.
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("%s: Resend blocked delivery: %s", operation, message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Resend rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Resend server error: %s", operation, message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: Resend error (%d): %s", operation, statusCode, message),
			nil,
		)
	}
}

// wrapResendError wraps a BaseClient transport error with context.
func (r *ResendClient) wrapResendError(operation string, err error) error {
	// AppErrors from BaseClient (circuit breaker, retries exhausted) already
	// carry the right error code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("%s: Resend request failed: %v", operation, err),
		err,
	)
}

// Compile-time assertion that ResendClient satisfies EmailProvider.
var _ EmailProvider = (*ResendClient)(nil)
