// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

// OTPChallengeRepository implements auth.OTPChallengeRepository using
// PostgreSQL. user_id is the primary key of otp_challenges, so at most one
// challenge is pending per user.
type OTPChallengeRepository struct {
	db DB
}

// NewOTPChallengeRepository creates a new OTPChallengeRepository.
func NewOTPChallengeRepository(db DB) *OTPChallengeRepository {
	return &OTPChallengeRepository{db: db}
}

// Put stores a challenge for the user, replacing any pending one.
func (r *OTPChallengeRepository) Put(ctx context.Context, userID string, challenge *auth.OTPChallenge) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO otp_challenges (user_id, code_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at
	`, userID, challenge.CodeHash, challenge.ExpiresAt)
	if err != nil {
		return storeErr("OTP_PUT_FAILED", "upsert otp challenge", err)
	}
	return nil
}

// GetAndInvalidate reads and deletes the pending challenge in one
// DELETE ... RETURNING statement, so two concurrent verifications can never
// both receive it.
func (r *OTPChallengeRepository) GetAndInvalidate(ctx context.Context, userID string) (*auth.OTPChallenge, error) {
	row := r.db.QueryRow(ctx, `
		DELETE FROM otp_challenges
		WHERE user_id = $1
		RETURNING code_hash, expires_at
	`, userID)

	var challenge auth.OTPChallenge
	err := row.Scan(&challenge.CodeHash, &challenge.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("OTP_CHALLENGE_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("OTP_CONSUME_FAILED", "consume otp challenge", err)
	}
	return &challenge, nil
}

// Compile-time interface check.
var _ auth.OTPChallengeRepository = (*OTPChallengeRepository)(nil)
