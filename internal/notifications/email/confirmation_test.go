package email

import (
	"context"
	"errors"
	"strings"
	"testing"

	"accounting/internal/types"
)

// captureProvider records the last SendInput it received.
type captureProvider struct {
	input types.SendInput
	err   error
}

func (p *captureProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	p.input = input
	if p.err != nil {
		return "", p.err
	}
	return "msg-1", nil
}

func newTestMailer(t *testing.T, provider *captureProvider) *ConfirmationMailer {
	t.Helper()
	mailer, err := NewConfirmationMailer(provider, ConfirmationMailerConfig{
		BaseURL: "https://accounting.example.net/",
		From:    types.EmailAddress{Name: "Qabel Accounting", Address: "noreply@qabel.de"},
	})
	if err != nil {
		t.Fatalf("NewConfirmationMailer returned error: %v", err)
	}
	return mailer
}

func TestSendConfirmation_RendersBothBodies(t *testing.T) {
	provider := &captureProvider{}
	mailer := newTestMailer(t, provider)

	user := &types.User{
		ID:       7,
		Username: "alice",
		Email:    "alice@example.net",
		Token:    "deadbeef",
	}

	if err := mailer.SendConfirmation(context.Background(), user); err != nil {
		t.Fatalf("SendConfirmation returned error: %v", err)
	}

	in := provider.input
	if in.To != "alice@example.net" {
		t.Errorf("To = %q", in.To)
	}
	if in.From.Address != "noreply@qabel.de" {
		t.Errorf("From = %+v", in.From)
	}
	if in.Subject != confirmationSubject {
		t.Errorf("Subject = %q", in.Subject)
	}

	wantURL := "https://accounting.example.net/api/v0/confirm/deadbeef"
	if !strings.Contains(in.BodyText, wantURL) {
		t.Errorf("text body missing confirmation link:\n%s", in.BodyText)
	}
	if !strings.Contains(in.BodyHTML, wantURL) {
		t.Errorf("HTML body missing confirmation link:\n%s", in.BodyHTML)
	}
	if !strings.Contains(in.BodyText, "alice") {
		t.Errorf("text body missing username:\n%s", in.BodyText)
	}
}

func TestSendConfirmation_EscapesUsernameInHTML(t *testing.T) {
	provider := &captureProvider{}
	mailer := newTestMailer(t, provider)

	user := &types.User{
		Username: "<script>alert(1)</script>",
		Email:    "eve@example.net",
		Token:    "t",
	}

	if err := mailer.SendConfirmation(context.Background(), user); err != nil {
		t.Fatalf("SendConfirmation returned error: %v", err)
	}
	if strings.Contains(provider.input.BodyHTML, "<script>") {
		t.Error("HTML body must escape the username")
	}
}

func TestSendConfirmation_PropagatesProviderError(t *testing.T) {
	provider := &captureProvider{
		err: types.NewAppError(types.ErrCodeUpstreamEmailProvider, "smtp down", errors.New("boom")),
	}
	mailer := newTestMailer(t, provider)

	err := mailer.SendConfirmation(context.Background(), &types.User{
		Username: "alice", Email: "alice@example.net", Token: "t",
	})

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error type = %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Errorf("code = %q", appErr.Code)
	}
}
