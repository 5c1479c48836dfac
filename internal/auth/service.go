// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// DefaultOTPTTL is the challenge lifetime used when none is configured.
const DefaultOTPTTL = 10 * time.Minute

// Flow names reported to the FlowObserver.
const (
	FlowSignup       = "signup"
	FlowLogin        = "login"
	FlowAuthenticate = "authenticate"
	FlowForgot       = "forgot_password"
	FlowVerifyOTP    = "verify_otp"
	FlowReset        = "reset_password"
)

// FlowObserver receives one observation per completed flow operation.
// result is "success" or "failure".
type FlowObserver interface {
	Observe(flow, result string)
}

type nopObserver struct{}

func (nopObserver) Observe(string, string) {}

// dummyPasswordHash is verified against when a login names an unknown email,
// so that response time does not reveal whether the account exists. It is
// NOT a real credential and matches no password.
//
//nolint:gosec // G101: intentionally fake digest for timing-attack prevention.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Service is the flow controller: it sequences signup, login, request
// authentication, and the forgot-password / OTP / reset state machine over
// the injected collaborators. It holds no mutable state of its own, so a
// single instance serves concurrent requests.
type Service struct {
	users    UserRepository
	otps     OTPChallengeRepository
	hasher   PasswordHasher
	codec    *TokenCodec
	codes    CodeGenerator
	sender   CodeSender
	otpTTL   time.Duration
	logger   *slog.Logger
	observer FlowObserver
}

// ServiceOptions contains the optional knobs for NewService. Zero values
// select the defaults.
type ServiceOptions struct {
	// OTPTTL is the one-time code lifetime. Default: DefaultOTPTTL.
	OTPTTL time.Duration

	// Logger receives flow-level structured logs. Default: slog.Default().
	Logger *slog.Logger

	// Observer receives per-flow outcome observations. Default: none.
	Observer FlowObserver
}

// NewService creates a Service. All repository and crypto collaborators are
// required; delivery of OTP codes goes through sender.
func NewService(
	users UserRepository,
	otps OTPChallengeRepository,
	hasher PasswordHasher,
	codec *TokenCodec,
	codes CodeGenerator,
	sender CodeSender,
	opts ServiceOptions,
) (*Service, error) {
	switch {
	case users == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("user repository is required")
	case otps == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("otp challenge repository is required")
	case hasher == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("password hasher is required")
	case codec == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("token codec is required")
	case codes == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("code generator is required")
	case sender == nil:
		return nil, oops.Code("AUTH_CONFIG_INVALID").Errorf("code sender is required")
	}

	if opts.OTPTTL <= 0 {
		opts.OTPTTL = DefaultOTPTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	return &Service{
		users:    users,
		otps:     otps,
		hasher:   hasher,
		codec:    codec,
		codes:    codes,
		sender:   sender,
		otpTTL:   opts.OTPTTL,
		logger:   opts.Logger,
		observer: opts.Observer,
	}, nil
}

// Signup registers a new account and returns a session token for it. The
// email is normalized before the uniqueness check; the store's insert is
// atomic with that check, so a concurrent signup of the same email loses
// with ErrEmailAlreadyRegistered rather than creating a duplicate.
func (s *Service) Signup(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.observer.Observe(FlowSignup, "failure")
		return "", oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailAlreadyRegistered)
	case !errors.Is(err, ErrNotFound):
		s.observer.Observe(FlowSignup, "failure")
		return "", oops.Code("AUTH_SIGNUP_FAILED").With("operation", "find user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.observer.Observe(FlowSignup, "failure")
		return "", oops.Code("AUTH_SIGNUP_FAILED").With("operation", "hash password").Wrap(err)
	}

	id, err := s.users.Insert(ctx, &User{
		Email:        email,
		PasswordHash: hash,
		IsAdmin:      false,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		s.observer.Observe(FlowSignup, "failure")
		// A concurrent signup raced past the pre-check.
		if errors.Is(err, ErrDuplicateEmail) {
			return "", oops.Code("AUTH_EMAIL_TAKEN").Wrap(ErrEmailAlreadyRegistered)
		}
		return "", oops.Code("AUTH_SIGNUP_FAILED").With("operation", "insert user").Wrap(err)
	}

	token, err := s.codec.MintSession(id)
	if err != nil {
		s.observer.Observe(FlowSignup, "failure")
		return "", oops.Code("AUTH_SIGNUP_FAILED").With("operation", "mint session token").Wrap(err)
	}

	s.logger.Info("user signed up", "user_id", id)
	s.observer.Observe(FlowSignup, "success")
	return token, nil
}

// Login verifies credentials and returns a session token. Unknown email and
// wrong password are indistinguishable to the caller, and the password is
// verified against a dummy digest when the email is unknown so the two cases
// take comparable time.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)

	targetHash := dummyPasswordHash
	var user *User

	found, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		user = found
		targetHash = found.PasswordHash
	case !errors.Is(err, ErrNotFound):
		s.observer.Observe(FlowLogin, "failure")
		return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "find user by email").Wrap(err)
	}

	if !s.hasher.Verify(password, targetHash) || user == nil {
		s.observer.Observe(FlowLogin, "failure")
		return "", oops.Code("AUTH_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
	}

	token, err := s.codec.MintSession(user.ID)
	if err != nil {
		s.observer.Observe(FlowLogin, "failure")
		return "", oops.Code("AUTH_LOGIN_FAILED").With("operation", "mint session token").Wrap(err)
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	s.observer.Observe(FlowLogin, "success")
	return token, nil
}

// AuthenticateRequest validates a session token and returns the user it
// names, with the password hash cleared. A valid token whose subject no
// longer exists fails exactly like a bad token.
func (s *Service) AuthenticateRequest(ctx context.Context, token string) (*User, error) {
	userID, err := s.codec.DecodeSession(token)
	if err != nil {
		s.observer.Observe(FlowAuthenticate, "failure")
		return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.observer.Observe(FlowAuthenticate, "failure")
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_UNAUTHENTICATED").Wrap(ErrUnauthenticated)
		}
		return nil, oops.Code("AUTH_AUTHENTICATE_FAILED").With("operation", "find user by id").Wrap(err)
	}

	s.observer.Observe(FlowAuthenticate, "success")

	sanitized := *user
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// ForgotPassword starts the reset flow: it mints a one-time code, stores its
// hash with an absolute expiry (replacing any pending challenge), and hands
// the raw code to the sender. An unknown email succeeds silently so the
// operation cannot be used to probe which addresses are registered.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			s.observer.Observe(FlowForgot, "success")
			return nil
		}
		s.observer.Observe(FlowForgot, "failure")
		return oops.Code("AUTH_FORGOT_FAILED").With("operation", "find user by email").Wrap(err)
	}

	code, err := s.codes.Generate()
	if err != nil {
		s.observer.Observe(FlowForgot, "failure")
		return oops.Code("AUTH_FORGOT_FAILED").With("operation", "generate otp").Wrap(err)
	}

	codeHash, err := s.hasher.Hash(code)
	if err != nil {
		s.observer.Observe(FlowForgot, "failure")
		return oops.Code("AUTH_FORGOT_FAILED").With("operation", "hash otp").Wrap(err)
	}

	challenge := &OTPChallenge{
		CodeHash:  codeHash,
		ExpiresAt: time.Now().Add(s.otpTTL),
	}
	if err := s.otps.Put(ctx, user.ID, challenge); err != nil {
		s.observer.Observe(FlowForgot, "failure")
		return oops.Code("AUTH_FORGOT_FAILED").With("operation", "store otp challenge").Wrap(err)
	}

	if err := s.sender.Send(ctx, email, code); err != nil {
		s.observer.Observe(FlowForgot, "failure")
		return oops.Code("OTP_DELIVERY_FAILED").With("user_id", user.ID).Wrap(err)
	}

	s.logger.Info("password reset code issued", "user_id", user.ID)
	s.observer.Observe(FlowForgot, "success")
	return nil
}

// VerifyOTP checks a one-time code and, on success, mints a reset token for
// the user. The pending challenge is consumed atomically before the code is
// checked, so every outcome burns it: a second attempt, concurrent or not,
// fails with ErrOTPNotFound.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, error) {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		s.observer.Observe(FlowVerifyOTP, "failure")
		if errors.Is(err, ErrNotFound) {
			// Indistinguishable from "no code pending" on purpose.
			return "", oops.Code("OTP_NOT_FOUND").Wrap(ErrOTPNotFound)
		}
		return "", oops.Code("AUTH_VERIFY_OTP_FAILED").With("operation", "find user by email").Wrap(err)
	}

	challenge, err := s.otps.GetAndInvalidate(ctx, user.ID)
	if err != nil {
		s.observer.Observe(FlowVerifyOTP, "failure")
		if errors.Is(err, ErrNotFound) {
			return "", oops.Code("OTP_NOT_FOUND").Wrap(ErrOTPNotFound)
		}
		return "", oops.Code("AUTH_VERIFY_OTP_FAILED").With("operation", "consume otp challenge").Wrap(err)
	}

	if challenge.IsExpired(time.Now()) {
		s.observer.Observe(FlowVerifyOTP, "failure")
		return "", oops.Code("OTP_EXPIRED").With("user_id", user.ID).Wrap(ErrOTPExpired)
	}

	if !s.hasher.Verify(code, challenge.CodeHash) {
		s.observer.Observe(FlowVerifyOTP, "failure")
		return "", oops.Code("OTP_MISMATCH").With("user_id", user.ID).Wrap(ErrOTPMismatch)
	}

	token, err := s.codec.MintReset(user.ID)
	if err != nil {
		s.observer.Observe(FlowVerifyOTP, "failure")
		return "", oops.Code("AUTH_VERIFY_OTP_FAILED").With("operation", "mint reset token").Wrap(err)
	}

	s.logger.Info("otp verified, reset token issued", "user_id", user.ID)
	s.observer.Observe(FlowVerifyOTP, "success")
	return token, nil
}

// ResetPassword overwrites the user's password hash using a purpose-checked
// reset token. It deliberately does not issue a new session token: after a
// reset the caller must log in again.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	userID, err := s.codec.DecodeReset(resetToken)
	if err != nil {
		s.observer.Observe(FlowReset, "failure")
		return err // already carries ErrInvalidToken / ErrTokenExpired / ErrWrongTokenPurpose
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.observer.Observe(FlowReset, "failure")
		return oops.Code("AUTH_RESET_FAILED").With("operation", "hash password").Wrap(err)
	}

	if err := s.users.UpdatePasswordHash(ctx, userID, hash); err != nil {
		s.observer.Observe(FlowReset, "failure")
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_USER_NOT_FOUND").With("user_id", userID).Wrap(ErrUserNotFound)
		}
		return oops.Code("AUTH_RESET_FAILED").With("operation", "update password hash").Wrap(err)
	}

	s.logger.Info("password reset", "user_id", userID)
	s.observer.Observe(FlowReset, "success")
	return nil
}
