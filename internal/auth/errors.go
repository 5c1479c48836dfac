// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import "errors"

// Domain errors surfaced by the flow controller. Each is terminal for the
// operation that returned it; none triggers an internal retry.
var (
	// ErrEmailAlreadyRegistered is returned by Signup when the normalized
	// email already belongs to an account.
	ErrEmailAlreadyRegistered = errors.New("email already registered")

	// ErrInvalidCredentials collapses "no such user" and "wrong password"
	// so login failures cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated collapses "bad token" and "token for deleted user"
	// for the same reason.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUserNotFound is returned when an operation names a user record
	// that does not exist and hiding that fact serves no purpose.
	ErrUserNotFound = errors.New("user not found")

	// ErrOTPNotFound is returned when no one-time code is pending for the
	// user, including after a prior VerifyOTP consumed it.
	ErrOTPNotFound = errors.New("no pending one-time code")

	// ErrOTPExpired is returned when the pending one-time code's lifetime
	// has elapsed.
	ErrOTPExpired = errors.New("one-time code expired")

	// ErrOTPMismatch is returned when the presented code does not hash to
	// the stored challenge.
	ErrOTPMismatch = errors.New("one-time code mismatch")

	// ErrInvalidToken is returned when a token is malformed or its
	// signature does not verify.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a structurally valid, correctly
	// signed token is past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongTokenPurpose is returned when a valid token carries the
	// wrong purpose tag for the consumer, e.g. a reset token presented
	// where a session token is expected. It is only returned after
	// signature and expiry checks succeed.
	ErrWrongTokenPurpose = errors.New("wrong token purpose")
)

// Store-layer errors. Repository implementations translate their backend's
// failures into these; the flow controller maps them onto domain errors.
var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by UserRepository.Insert when the
	// email uniqueness constraint is violated.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrStoreUnavailable wraps transient backend failures (timeouts,
	// connection errors). Unlike domain errors, callers may retry.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
