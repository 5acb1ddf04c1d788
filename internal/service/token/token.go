// Package token signs and verifies the links that let a member download a
// scan report without logging in.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

// Common download token errors
var (
	// ErrInvalidToken indicates the token format is invalid or signature doesn't match
	ErrInvalidToken = errors.New("invalid download token")

	// ErrExpiredToken indicates the token has expired
	ErrExpiredToken = errors.New("download token has expired")
)

// Claims are the verified contents of a download token.
type Claims struct {
	// TokenID is the jti claim and the primary key of the stored token row.
	TokenID   uuid.UUID
	TaskID    uuid.UUID
	ExpiresAt time.Time
}

type downloadClaims struct {
	TaskID uuid.UUID `json:"tid"`
	jwt.RegisteredClaims
}

// Signer issues HS256 download tokens.
type Signer struct {
	signingKey []byte
	lifetime   time.Duration
	timeFunc   func() time.Time
	clockSkew  time.Duration
}

// NewSigner creates a Signer from the download configuration.
func NewSigner(cfg config.DownloadConfig) (*Signer, error) {
	if len(cfg.TokenSecret) < 32 {
		return nil, fmt.Errorf("download token secret must be at least 32 characters")
	}
	lifetime := cfg.TokenTTL
	if lifetime <= 0 {
		lifetime = 7 * 24 * time.Hour
	}
	return &Signer{
		signingKey: []byte(cfg.TokenSecret),
		lifetime:   lifetime,
		timeFunc:   time.Now,
		clockSkew:  time.Minute,
	}, nil
}

// Lifetime is how long issued tokens stay valid.
func (s *Signer) Lifetime() time.Duration { return s.lifetime }

// Sign creates a token for taskID whose jti is tokenID.
func (s *Signer) Sign(ctx context.Context, tokenID, taskID uuid.UUID) (string, time.Time, error) {
	now := s.timeFunc()
	expiresAt := now.Add(s.lifetime)

	claims := downloadClaims{
		TaskID: taskID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   taskID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID.String(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		logger.FromContext(ctx).Error("failed to sign download token",
			"error", err,
			"task_id", taskID)
		return "", time.Time{}, fmt.Errorf("failed to sign download token: %w", err)
	}
	// Callers persist this; it must match the truncated exp claim.
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies a token and returns its claims.
func (s *Signer) Parse(ctx context.Context, tokenString string) (*Claims, error) {
	log := logger.FromContext(ctx)
	now := s.timeFunc()

	token, err := jwt.ParseWithClaims(
		tokenString,
		&downloadClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithLeeway(s.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			log.Debug("download token expired", "error", err)
			return nil, ErrExpiredToken
		}
		log.Debug("download token rejected", "error", err, "error_type", fmt.Sprintf("%T", err))
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*downloadClaims)
	if !ok || !token.Valid || claims.TaskID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &Claims{
		TokenID:   tokenID,
		TaskID:    claims.TaskID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
