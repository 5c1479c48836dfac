// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"strings"
	"time"
)

// User is an account record. The ID is an opaque identifier assigned by the
// store on insert and immutable afterwards; Email is stored normalized
// (lower-cased) and is unique per account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

// OTPChallenge is a pending one-time code for a user: the hash of the code
// (never the code itself) and its absolute expiry. At most one challenge is
// pending per user; issuing a new one replaces it.
type OTPChallenge struct {
	CodeHash  string
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge has expired at the given time.
func (c *OTPChallenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository is the credential store contract consumed by the core.
// Implementations return ErrNotFound for missing records, ErrDuplicateEmail
// from Insert when the uniqueness constraint trips, and wrap transient
// backend failures with ErrStoreUnavailable.
type UserRepository interface {
	// FindByEmail retrieves a user by normalized email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// Insert stores a new user and returns the assigned id. The uniqueness
	// check and the insert are atomic: a concurrent insert of the same
	// email fails with ErrDuplicateEmail rather than creating a duplicate.
	Insert(ctx context.Context, user *User) (string, error)

	// FindByID retrieves a user by id.
	FindByID(ctx context.Context, id string) (*User, error)

	// UpdatePasswordHash overwrites the stored hash for a user.
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
}

// OTPChallengeRepository stores pending one-time codes keyed by user id.
type OTPChallengeRepository interface {
	// Put stores a challenge for the user, replacing any pending one.
	Put(ctx context.Context, userID string, challenge *OTPChallenge) error

	// GetAndInvalidate atomically reads and deletes the pending challenge.
	// A second call before another Put returns ErrNotFound, which is what
	// makes the codes single-use even under concurrent verification.
	GetAndInvalidate(ctx context.Context, userID string) (*OTPChallenge, error)
}

// CodeSender delivers a raw one-time code out of band (mail, SMS). The core
// never stores the raw code; the sender is its only consumer.
type CodeSender interface {
	Send(ctx context.Context, email, code string) error
}
