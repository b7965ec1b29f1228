package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"accounting/internal/types"
)

func noopSleep(time.Duration) {}

func newTestSendGridClient(t *testing.T, serverURL string) *SendGridClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid",
		RetryPolicy{
			MaxRetries: 0, // No retries in tests for deterministic behavior
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"accounting-test/1.0",
		WithSleepFunc(noopSleep),
	)

	return NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: serverURL,
	})
}

func confirmationInput() types.SendInput {
	return types.SendInput{
		To: "alice@example.net",
		From: types.EmailAddress{
			Name:    "Qabel Accounting",
			Address: "noreply@qabel.de",
		},
		Subject:  "Please confirm your email address",
		BodyText: "Open the link to confirm your address",
		BodyHTML: "<p>Open the link to confirm your address</p>",
	}
}

func TestSendGridSend_Success(t *testing.T) {
	var receivedPayload sendGridMailPayload
	var receivedAuth string
	var receivedContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v3/mail/send" {
			t.Errorf("expected path /v3/mail/send, got %s", r.URL.Path)
		}

		receivedAuth = r.Header.Get("Authorization")
		receivedContentType = r.Header.Get("Content-Type")

		if err := json.NewDecoder(r.Body).Decode(&receivedPayload); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("X-Message-Id", "sg_msg_abc123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	msgID, err := client.Send(context.Background(), confirmationInput())
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "sg_msg_abc123" {
		t.Errorf("msgID = %q, want sg_msg_abc123", msgID)
	}

	if receivedAuth != "Bearer SG.test_api_key" {
		t.Errorf("Authorization = %q", receivedAuth)
	}
	if receivedContentType != "application/json" {
		t.Errorf("Content-Type = %q", receivedContentType)
	}

	// Payload structure: recipient, sender, subject, text before html.
	if len(receivedPayload.Personalizations) != 1 ||
		len(receivedPayload.Personalizations[0].To) != 1 ||
		receivedPayload.Personalizations[0].To[0].Email != "alice@example.net" {
		t.Errorf("unexpected personalizations: %+v", receivedPayload.Personalizations)
	}
	if receivedPayload.From.Email != "noreply@qabel.de" {
		t.Errorf("From = %+v", receivedPayload.From)
	}
	if receivedPayload.Subject != "Please confirm your email address" {
		t.Errorf("Subject = %q", receivedPayload.Subject)
	}
	if len(receivedPayload.Content) != 2 ||
		receivedPayload.Content[0].Type != "text/plain" ||
		receivedPayload.Content[1].Type != "text/html" {
		t.Errorf("Content = %+v, want text/plain then text/html", receivedPayload.Content)
	}
}

func TestSendGridSend_ForbiddenMapsToEmailBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(sendGridErrorResponse{
			Errors: []sendGridErrorDetail{{Message: "recipient suppressed"}},
		})
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), confirmationInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error type = %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeEmailBlocked)
	}
}

func TestSendGridSend_BadRequestMapsToEmailProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(sendGridErrorResponse{
			Errors: []sendGridErrorDetail{{Message: "missing subject", Field: "subject"}},
		})
	}))
	defer server.Close()

	client := newTestSendGridClient(t, server.URL)

	_, err := client.Send(context.Background(), confirmationInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error type = %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamEmailProvider)
	}
}

func TestSendGridSend_ServerErrorRetriedThenMapped(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-sendgrid-5xx",
		RetryPolicy{MaxRetries: 2, MinWait: time.Millisecond, MaxWait: 2 * time.Millisecond},
		"accounting-test/1.0",
		WithSleepFunc(noopSleep),
	)
	client := NewSendGridClientWithBase(base, SendGridClientConfig{
		APIKey:  "SG.test_api_key",
		BaseURL: server.URL,
	})

	_, err := client.Send(context.Background(), confirmationInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error type = %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamUnavailable {
		t.Errorf("code = %q, want %q", appErr.Code, types.ErrCodeUpstreamUnavailable)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (initial + 2 retries)", attempts)
	}
}
