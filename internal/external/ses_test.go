package external

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"accounting/internal/types"
)

// mockSESAPI implements SESAPI for testing.
type mockSESAPI struct {
	sendEmailFunc func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

func (m *mockSESAPI) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	return m.sendEmailFunc(ctx, params, optFns...)
}

func TestSESSend_Success(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput

	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{
				MessageId: aws.String("ses-msg-abc123"),
			}, nil
		},
	}

	client := NewSESClientWithAPI(mock, SESClientConfig{
		ConfigSetName: "accounting-tracking",
	})

	input := types.SendInput{
		To: "alice@example.net",
		From: types.EmailAddress{
			Name:    "Qabel Accounting",
			Address: "noreply@qabel.de",
		},
		Subject:  "Please confirm your email address",
		BodyText: "Open the link to confirm your address",
		BodyHTML: "<p>Open the link to confirm your address</p>",
	}

	msgID, err := client.Send(context.Background(), input)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if msgID != "ses-msg-abc123" {
		t.Errorf("msgID = %q, want ses-msg-abc123", msgID)
	}

	if got := aws.ToString(capturedInput.FromEmailAddress); got != "Qabel Accounting <noreply@qabel.de>" {
		t.Errorf("FromEmailAddress = %q", got)
	}
	if got := capturedInput.Destination.ToAddresses; len(got) != 1 || got[0] != "alice@example.net" {
		t.Errorf("ToAddresses = %v", got)
	}
	simple := capturedInput.Content.Simple
	if got := aws.ToString(simple.Subject.Data); got != "Please confirm your email address" {
		t.Errorf("Subject = %q", got)
	}
	if simple.Body.Text == nil || simple.Body.Html == nil {
		t.Error("both text and HTML bodies should be set")
	}
	if got := aws.ToString(capturedInput.ConfigurationSetName); got != "accounting-tracking" {
		t.Errorf("ConfigurationSetName = %q", got)
	}
}

func TestSESSend_FromWithoutName(t *testing.T) {
	var capturedInput *sesv2.SendEmailInput
	mock := &mockSESAPI{
		sendEmailFunc: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			capturedInput = params
			return &sesv2.SendEmailOutput{MessageId: aws.String("id")}, nil
		},
	}
	client := NewSESClientWithAPI(mock, SESClientConfig{})

	_, err := client.Send(context.Background(), types.SendInput{
		To:       "alice@example.net",
		From:     types.EmailAddress{Address: "noreply@qabel.de"},
		Subject:  "s",
		BodyText: "b",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if got := aws.ToString(capturedInput.FromEmailAddress); got != "noreply@qabel.de" {
		t.Errorf("FromEmailAddress = %q, want bare address", got)
	}
}

func TestSESSend_ErrorMapping(t *testing.T) {
	cases := []struct {
		name     string
		sesErr   error
		wantCode types.ErrorCode
	}{
		{
			name:     "message rejected maps to email blocked",
			sesErr:   &sestypes.MessageRejected{Message: aws.String("address suppressed")},
			wantCode: types.ErrCodeEmailBlocked,
		},
		{
			name:     "throttle maps to rate limited",
			sesErr:   &sestypes.TooManyRequestsException{Message: aws.String("slow down")},
			wantCode: types.ErrCodeUpstreamRateLimited,
		},
		{
			name:     "sending paused maps to unavailable",
			sesErr:   &sestypes.SendingPausedException{Message: aws.String("paused")},
			wantCode: types.ErrCodeUpstreamUnavailable,
		},
		{
			name:     "unknown error maps to email provider",
			sesErr:   fmt.Errorf("network broke"),
			wantCode: types.ErrCodeUpstreamEmailProvider,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockSESAPI{
				sendEmailFunc: func(context.Context, *sesv2.SendEmailInput, ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
					return nil, tc.sesErr
				},
			}
			client := NewSESClientWithAPI(mock, SESClientConfig{})

			_, err := client.Send(context.Background(), types.SendInput{
				To:       "alice@example.net",
				From:     types.EmailAddress{Address: "noreply@qabel.de"},
				Subject:  "s",
				BodyText: "b",
			})

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("error type = %T, want *types.AppError", err)
			}
			if appErr.Code != tc.wantCode {
				t.Errorf("code = %q, want %q", appErr.Code, tc.wantCode)
			}
		})
	}
}
