// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package auth implements the Gatehouse credential and session-token core.
//
// # Components
//
//   - Argon2idHasher - one-way hashing for account passwords and OTP codes
//   - TokenCodec - signed, expiring claims for session and reset tokens
//   - OTPGenerator - cryptographically random numeric one-time codes
//   - Service - the flow controller orchestrating signup, login, request
//     authentication, and the forgot-password / OTP / reset sequence
//
// Persistence is delegated to the UserRepository and OTPChallengeRepository
// interfaces. PostgreSQL implementations live in the postgres subpackage;
// in-memory implementations for tests and embedders live in authtest.
//
// # Errors
//
// Domain failures are sentinel errors (ErrInvalidCredentials, ErrOTPExpired,
// ...) wrapped with oops codes and structured context, so callers can branch
// with errors.Is and operators can read the codes from logs. Transient
// storage failures wrap ErrStoreUnavailable and are safe to retry; domain
// errors are terminal for the operation.
package auth
