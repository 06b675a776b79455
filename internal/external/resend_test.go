package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"telloo/internal/types"
)

func newTestResendClient(t *testing.T, serverURL string) *ResendClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-resend",
		RetryPolicy{
			MaxRetries: 0, // deterministic single attempts
			MinWait:    time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"Telloo-Test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewResendClientWithBase(base, ResendClientConfig{
		APIKey:  "re_test_key",
		BaseURL: serverURL,
	})
}

func testSendInput() types.SendInput {
	return types.SendInput{
		To: "jane@example.com",
		From: types.SenderIdentity{
			Name:    "Telloo",
			Address: "notifications@telloo.com",
		},
		Subject:     `New comment on "Dark mode please"`,
		BodyHTML:    "<p>Count me in</p>",
		BodyText:    "Count me in",
		ReferenceID: "post_1",
	}
}

func TestResendSend_Success(t *testing.T) {
	var payload resendMailPayload
	var auth, contentType, refHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/emails" {
			t.Errorf("expected path /emails, got %s", r.URL.Path)
		}

		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")

		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		refHeader = payload.Headers["X-Entity-Ref-ID"]

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"re_msg_abc123"}`))
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	msgID, err := client.Send(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if msgID != "re_msg_abc123" {
		t.Errorf("expected message ID re_msg_abc123, got %s", msgID)
	}
	if auth != "Bearer re_test_key" {
		t.Errorf("expected Bearer re_test_key, got %s", auth)
	}
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	if payload.From != "Telloo <notifications@telloo.com>" {
		t.Errorf("unexpected from: %s", payload.From)
	}
	if len(payload.To) != 1 || payload.To[0] != "jane@example.com" {
		t.Errorf("unexpected to: %v", payload.To)
	}
	if payload.Subject != `New comment on "Dark mode please"` {
		t.Errorf("unexpected subject: %s", payload.Subject)
	}
	if payload.HTML != "<p>Count me in</p>" {
		t.Errorf("unexpected html body: %s", payload.HTML)
	}
	if payload.Text != "Count me in" {
		t.Errorf("unexpected text body: %s", payload.Text)
	}
	if refHeader != "post_1" {
		t.Errorf("expected X-Entity-Ref-ID post_1, got %s", refHeader)
	}
}

func TestResendSend_FromWithoutName(t *testing.T) {
	var payload resendMailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"re_msg_1"}`))
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	input := testSendInput()
	input.From.Name = ""
	if _, err := client.Send(context.Background(), input); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if payload.From != "notifications@telloo.com" {
		t.Errorf("expected bare address, got %s", payload.From)
	}
}

func TestResendSend_ForbiddenMapsToEmailBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"statusCode":403,"name":"validation_error","message":"domain is not verified"}`))
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got: %v", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("expected code %s, got %s", types.ErrCodeEmailBlocked, appErr.Code)
	}
}

func TestResendSend_RateLimitedAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 429 response")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got: %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamRateLimited {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamRateLimited, appErr.Code)
	}
}

func TestResendSend_ServerErrorMapsToUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got: %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestResendSend_Other4xxMapsToProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"to address is invalid"}`))
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 422 response")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got: %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamEmailProvider, appErr.Code)
	}
}

func TestResendSend_ExactlyOneDeliveryAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	// The production constructor: a failing send must not be re-POSTed, or
	// a recipient whose first attempt actually delivered gets a duplicate.
	client := NewResendClient(&http.Client{Timeout: 5 * time.Second}, ResendClientConfig{
		APIKey:  "re_test_key",
		BaseURL: server.URL,
	})

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected exactly 1 delivery attempt, got %d", got)
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got: %v", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("expected code %s, got %s", types.ErrCodeUpstreamUnavailable, appErr.Code)
	}
}

func TestResendSend_429NotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewResendClient(&http.Client{Timeout: 5 * time.Second}, ResendClientConfig{
		APIKey:  "re_test_key",
		BaseURL: server.URL,
	})

	_, err := client.Send(context.Background(), testSendInput())
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("expected exactly 1 delivery attempt, got %d", got)
	}
}

func TestResendSend_SuccessWithUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`not-json`))
	}))
	defer server.Close()

	client := newTestResendClient(t, server.URL)

	// Delivery accepted; only the correlation ID is lost.
	msgID, err := client.Send(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "" {
		t.Errorf("expected empty message ID, got %s", msgID)
	}
}
