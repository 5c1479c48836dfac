// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package authtest provides in-memory implementations of the auth
// repositories with the same atomicity guarantees as the real store. They
// back the flow tests and are usable by embedders who want the core without
// PostgreSQL.
package authtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// UserStore is a mutex-guarded in-memory auth.UserRepository.
type UserStore struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]auth.User
	byEmail map[string]string // normalized email -> id
}

// NewUserStore creates an empty UserStore.
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]auth.User),
		byEmail: make(map[string]string),
	}
}

// FindByEmail retrieves a user by normalized email.
func (s *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	user := s.byID[id]
	return &user, nil
}

// Insert stores a new user and returns the assigned id. The duplicate check
// and the insert happen under one lock, mirroring the store contract.
func (s *UserStore) Insert(_ context.Context, user *auth.User) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return "", auth.ErrDuplicateEmail
	}

	s.nextID++
	id := fmt.Sprintf("user-%d", s.nextID)

	stored := *user
	stored.ID = id
	s.byID[id] = stored
	s.byEmail[stored.Email] = id

	return id, nil
}

// FindByID retrieves a user by id.
func (s *UserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &user, nil
}

// UpdatePasswordHash overwrites the stored hash for a user.
func (s *UserStore) UpdatePasswordHash(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = passwordHash
	s.byID[id] = user
	return nil
}

// Delete removes a user, for tests exercising tokens whose subject is gone.
func (s *UserStore) Delete(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.byID[id]; ok {
		delete(s.byEmail, user.Email)
		delete(s.byID, id)
	}
}

// OTPStore is a mutex-guarded in-memory auth.OTPChallengeRepository.
type OTPStore struct {
	mu      sync.Mutex
	pending map[string]auth.OTPChallenge
}

// NewOTPStore creates an empty OTPStore.
func NewOTPStore() *OTPStore {
	return &OTPStore{pending: make(map[string]auth.OTPChallenge)}
}

// Put stores a challenge for the user, replacing any pending one.
func (s *OTPStore) Put(_ context.Context, userID string, challenge *auth.OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[userID] = *challenge
	return nil
}

// GetAndInvalidate atomically reads and deletes the pending challenge.
func (s *OTPStore) GetAndInvalidate(_ context.Context, userID string) (*auth.OTPChallenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.pending[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	delete(s.pending, userID)
	return &challenge, nil
}

// SenderSpy is an auth.CodeSender capturing delivered codes.
type SenderSpy struct {
	mu    sync.Mutex
	codes map[string]string // email -> last delivered code
}

// NewSenderSpy creates an empty SenderSpy.
func NewSenderSpy() *SenderSpy {
	return &SenderSpy{codes: make(map[string]string)}
}

// Send records the code as delivered to the email.
func (s *SenderSpy) Send(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.codes[email] = code
	return nil
}

// LastCode returns the most recent code delivered to the email.
func (s *SenderSpy) LastCode(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.codes[email]
	return code, ok
}

// Compile-time interface checks.
var (
	_ auth.UserRepository         = (*UserStore)(nil)
	_ auth.OTPChallengeRepository = (*OTPStore)(nil)
	_ auth.CodeSender             = (*SenderSpy)(nil)
)
