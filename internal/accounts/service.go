// Package accounts implements identity and profile lifecycle: account
// creation (user and profile always created in one transaction), the
// is-allowed policy, and confirmation-mail enforcement.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"accounting/internal/types"
)

// ConfirmationDeadline is how long a fresh account may operate before its
// email must be confirmed.
const ConfirmationDeadline = 7 * 24 * time.Hour

// MailCooldown is the minimum spacing between confirmation mails for one
// profile, enforced across concurrent callers.
const MailCooldown = 24 * time.Hour

// minPasswordLength matches the registration policy.
const minPasswordLength = 8

// ConfirmationSender delivers a confirmation email for the user. Delivery is
// an external, non-transactional effect; callers compensate on failure.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, user *types.User) error
}

// Service owns account and confirmation state.
type Service struct {
	tx     types.TxManager
	mail   ConfirmationSender
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates an accounts Service.
func NewService(tx types.TxManager, mail ConfirmationSender, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, mail: mail, clock: clock, logger: logger}
}

// CreateAccountParams carries the registration input.
type CreateAccountParams struct {
	Username             string
	Email                string
	Password             string
	CreatedOnBehalf      bool
	PlusNotificationMail bool
	ProNotificationMail  bool
}

// CreateAccount creates the user identity and its profile in one transaction.
// A user without a profile (or vice versa) can never exist; the pairing is a
// constructor-time invariant, not an event hook.
func (s *Service) CreateAccount(ctx context.Context, params CreateAccountParams) (*types.User, *types.Profile, error) {
	if len(params.Password) < minPasswordLength {
		return nil, nil, types.NewAppError(types.ErrCodeValidationInvalidPassword,
			"password must be at least 8 characters", nil)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}
	token, err := newToken()
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	user := &types.User{
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: string(hash),
		Token:        token,
		IsActive:     true,
		CreatedAt:    now,
	}
	profile := &types.Profile{
		SubscribedPlanID:       types.FreePlanID,
		CreatedOnBehalf:        params.CreatedOnBehalf,
		NeedsConfirmationAfter: now.Add(ConfirmationDeadline),
		PlusNotificationMail:   params.PlusNotificationMail,
		ProNotificationMail:    params.ProNotificationMail,
		CreatedAt:              now,
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		if err := r.Users().Create(ctx, user); err != nil {
			return err
		}
		profile.UserID = user.ID
		return r.Profiles().Create(ctx, profile)
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("account created",
		"user_id", user.ID, "username", user.Username, "on_behalf", params.CreatedOnBehalf)
	return user, profile, nil
}

// ConfirmEmail records that the user's primary email was verified.
func (s *Service) ConfirmEmail(ctx context.Context, userID int64) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		return r.Users().MarkEmailVerified(ctx, userID)
	})
}

// IsAllowed reports whether the account may use the storage service: the
// identity must be active, and the email must be confirmed unless the
// confirmation deadline has not yet passed. Profiles created on behalf of a
// user are permanently exempt from the deadline.
func (s *Service) IsAllowed(user *types.User, profile *types.Profile) bool {
	return user.IsActive && (user.EmailVerified || !s.deadlineExceeded(profile))
}

func (s *Service) deadlineExceeded(profile *types.Profile) bool {
	if profile.CreatedOnBehalf {
		return false
	}
	return !s.clock.Now().Before(profile.NeedsConfirmationAfter)
}

// mailSentWithinCooldown reports whether a confirmation mail reservation is
// still active. NextConfirmationMail stores the instant the next mail may be
// sent.
func (s *Service) mailSentWithinCooldown(profile *types.Profile) bool {
	return profile.NextConfirmationMail != nil && s.clock.Now().Before(*profile.NextConfirmationMail)
}

// CheckConfirmationAndSendMail reports whether the profile is currently
// disabled, and, when it is, nudges the user by email at most once per
// cool-down window.
//
// Mail delivery cannot be part of a database transaction, so the send uses
// a reserve/act/compensate protocol:
//
//  1. Reserve: advance the cool-down timestamp with a compare-and-swap
//     against the value this caller read. Losing the swap means a concurrent
//     caller already reserved the window; that is a success for the invariant
//     (at most one mail per window) and is absorbed with a warning.
//  2. Act: send the mail, outside any transaction.
//  3. Compensate: if the send fails, restore the previous timestamp in a
//     second transaction so a later call may try again, and surface the
//     delivery error.
func (s *Service) CheckConfirmationAndSendMail(ctx context.Context, user *types.User, profile *types.Profile) (bool, error) {
	if s.IsAllowed(user, profile) {
		return false, nil
	}
	if s.mailSentWithinCooldown(profile) {
		return true, nil
	}

	prev := profile.NextConfirmationMail
	next := s.clock.Now().Add(MailCooldown)

	var won bool
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		var err error
		won, err = r.Profiles().ReserveConfirmationMail(ctx, user.ID, prev, next)
		return err
	})
	if err != nil {
		return true, err
	}
	if !won {
		s.logger.Warn("lost confirmation mail reservation to concurrent caller",
			"user_id", user.ID)
		return true, nil
	}

	if sendErr := s.mail.SendConfirmation(ctx, user); sendErr != nil {
		if rbErr := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
			return r.Profiles().RestoreConfirmationMail(ctx, user.ID, prev)
		}); rbErr != nil {
			// The reservation sticks until the window lapses; nothing more
			// can be done here beyond making the failure visible.
			s.logger.Error("failed to roll back confirmation mail reservation",
				"user_id", user.ID, "error", rbErr)
		}
		return true, types.NewAppError(types.ErrCodeUpstreamEmailProvider,
			"failed to send confirmation mail", sendErr)
	}

	profile.NextConfirmationMail = &next
	s.logger.Info("confirmation mail sent", "user_id", user.ID)
	return true, nil
}

// newToken generates the opaque bearer token handed to clients and forwarded
// by the block server.
func newToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate token", err)
	}
	return hex.EncodeToString(buf), nil
}
