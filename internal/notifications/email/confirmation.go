// Package email renders and delivers account emails. Templates are rendered
// client-side with Go's html/template from embedded files and handed to an
// external.EmailProvider as pre-rendered content.
package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"

	"accounting/internal/external"
	"accounting/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// confirmationSubject is the subject line of the confirmation nudge mail.
const confirmationSubject = "Please confirm your email address"

// confirmationData is the struct passed into the confirmation templates.
type confirmationData struct {
	Username   string
	ConfirmURL string
}

// ConfirmationMailerConfig holds the parameters needed to construct a
// ConfirmationMailer.
type ConfirmationMailerConfig struct {
	// BaseURL is the public API base URL used to build confirmation links
	// (no trailing slash).
	BaseURL string
	From    types.EmailAddress
	Logger  *slog.Logger
}

// ConfirmationMailer renders the confirmation nudge email and delivers it via
// an EmailProvider. It satisfies the accounts package's ConfirmationSender.
type ConfirmationMailer struct {
	provider external.EmailProvider
	htmlTmpl *template.Template
	textTmpl *texttemplate.Template
	baseURL  string
	from     types.EmailAddress
	logger   *slog.Logger
}

// NewConfirmationMailer parses the embedded templates and returns a mailer.
// Returns an error if any template fails to parse.
func NewConfirmationMailer(provider external.EmailProvider, cfg ConfirmationMailerConfig) (*ConfirmationMailer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	htmlContent, err := templateFS.ReadFile("templates/confirmation.html")
	if err != nil {
		return nil, fmt.Errorf("confirmation mailer: failed to read confirmation.html: %w", err)
	}
	htmlTmpl, err := template.New("confirmation").Parse(string(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("confirmation mailer: failed to parse confirmation.html: %w", err)
	}

	txtContent, err := templateFS.ReadFile("templates/confirmation.txt")
	if err != nil {
		return nil, fmt.Errorf("confirmation mailer: failed to read confirmation.txt: %w", err)
	}
	txtTmpl, err := texttemplate.New("confirmation").Parse(string(txtContent))
	if err != nil {
		return nil, fmt.Errorf("confirmation mailer: failed to parse confirmation.txt: %w", err)
	}

	return &ConfirmationMailer{
		provider: provider,
		htmlTmpl: htmlTmpl,
		textTmpl: txtTmpl,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		from:     cfg.From,
		logger:   logger,
	}, nil
}

// SendConfirmation renders both bodies and transmits the confirmation mail
// for the user. The link embeds the user's bearer token, which the
// confirmation endpoint resolves back to the account.
func (m *ConfirmationMailer) SendConfirmation(ctx context.Context, user *types.User) error {
	data := confirmationData{
		Username:   user.Username,
		ConfirmURL: fmt.Sprintf("%s/api/v0/confirm/%s", m.baseURL, user.Token),
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := m.htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return fmt.Errorf("confirmation mailer: failed to render HTML body: %w", err)
	}
	if err := m.textTmpl.Execute(&textBuf, data); err != nil {
		return fmt.Errorf("confirmation mailer: failed to render text body: %w", err)
	}

	msgID, err := m.provider.Send(ctx, types.SendInput{
		From:     m.from,
		To:       user.Email,
		Subject:  confirmationSubject,
		BodyText: textBuf.String(),
		BodyHTML: htmlBuf.String(),
	})
	if err != nil {
		return err
	}

	m.logger.Info("confirmation mail delivered",
		"user_id", user.ID, "provider_msg_id", msgID)
	return nil
}
