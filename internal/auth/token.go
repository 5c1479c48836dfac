// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

// PurposePasswordReset is the purpose tag carried by reset tokens. Session
// tokens carry no tag; the two are disjoint variants of the same signed
// claims encoding and neither decodes as the other.
const PurposePasswordReset = "password-reset"

// Claims is the signed claim set inside a Gatehouse token: the subject (user
// id), the absolute expiry fixed at mint time, and an optional purpose tag.
type Claims struct {
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// TokenConfig is one independently configurable secret/algorithm/TTL triple.
type TokenConfig struct {
	Secret    []byte
	Algorithm string // HS256, HS384 or HS512
	TTL       time.Duration
}

// TokenCodec mints and validates session and reset tokens. The two token
// kinds use separate TokenConfig triples so they can be signed with distinct
// secrets and live for different durations.
type TokenCodec struct {
	session       TokenConfig
	reset         TokenConfig
	sessionMethod jwt.SigningMethod
	resetMethod   jwt.SigningMethod
}

// NewTokenCodec creates a TokenCodec from the two signing configurations.
// Only HMAC algorithms are accepted; an empty secret or non-positive TTL is
// rejected here rather than at mint time.
func NewTokenCodec(session, reset TokenConfig) (*TokenCodec, error) {
	sessionMethod, err := hmacMethod(session)
	if err != nil {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("kind", "session").Wrap(err)
	}
	resetMethod, err := hmacMethod(reset)
	if err != nil {
		return nil, oops.Code("TOKEN_CONFIG_INVALID").With("kind", "reset").Wrap(err)
	}

	return &TokenCodec{
		session:       session,
		reset:         reset,
		sessionMethod: sessionMethod,
		resetMethod:   resetMethod,
	}, nil
}

func hmacMethod(cfg TokenConfig) (jwt.SigningMethod, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", cfg.TTL)
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", cfg.Algorithm)
	}
	return method, nil
}

// MintSession issues a session token for the user id. The expiry is an
// absolute timestamp computed from the session TTL at mint time.
func (c *TokenCodec) MintSession(userID string) (string, error) {
	return c.mint(userID, "", c.session, c.sessionMethod)
}

// MintReset issues a purpose-tagged reset token for the user id.
func (c *TokenCodec) MintReset(userID string) (string, error) {
	return c.mint(userID, PurposePasswordReset, c.reset, c.resetMethod)
}

func (c *TokenCodec) mint(userID, purpose string, cfg TokenConfig, method jwt.SigningMethod) (string, error) {
	now := time.Now()
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(method, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// DecodeSession validates a session token and returns its subject. A reset
// token presented here fails with ErrWrongTokenPurpose, but only after its
// signature and expiry have been verified, so a tampered reset token still
// reports ErrInvalidToken.
func (c *TokenCodec) DecodeSession(token string) (string, error) {
	claims, err := c.decode(token, c.session, c.sessionMethod)
	if err != nil {
		return "", err
	}
	if claims.Purpose != "" {
		return "", oops.Code("TOKEN_WRONG_PURPOSE").
			With("purpose", claims.Purpose).
			Wrap(ErrWrongTokenPurpose)
	}
	return claims.Subject, nil
}

// DecodeReset validates a reset token and returns its subject. The purpose
// tag must equal PurposePasswordReset; an untagged session token fails with
// ErrWrongTokenPurpose after signature and expiry checks succeed.
func (c *TokenCodec) DecodeReset(token string) (string, error) {
	claims, err := c.decode(token, c.reset, c.resetMethod)
	if err != nil {
		return "", err
	}
	if claims.Purpose != PurposePasswordReset {
		return "", oops.Code("TOKEN_WRONG_PURPOSE").
			With("purpose", claims.Purpose).
			Wrap(ErrWrongTokenPurpose)
	}
	return claims.Subject, nil
}

func (c *TokenCodec) decode(token string, cfg TokenConfig, method jwt.SigningMethod) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return cfg.Secret, nil },
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code("TOKEN_EXPIRED").Wrap(ErrTokenExpired)
		}
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	if !parsed.Valid || claims.Subject == "" {
		return nil, oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
	}
	return claims, nil
}
