package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/studycircle/studycircle-backend/internal/config"
	"github.com/studycircle/studycircle-backend/internal/model"
	"github.com/studycircle/studycircle-backend/internal/repository"
)

// Domain Errors
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUserInactive = errors.New("user account is deactivated")
)

// Claims extends JWT standard claims with the caller identity. Tokens are
// minted by the external identity provider; this service only verifies them.
type Claims struct {
	jwt.RegisteredClaims
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// AuthService verifies bearer tokens and resolves the calling user.
type AuthService struct {
	userRepo *repository.UserRepository
	cfg      *config.Config
	log      zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo *repository.UserRepository, cfg *config.Config, log zerolog.Logger) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		cfg:      cfg,
		log:      log.With().Str("component", "auth_service").Logger(),
	}
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ResolveUser loads the user behind a set of claims and rejects deactivated
// accounts.
func (s *AuthService) ResolveUser(ctx context.Context, claims *Claims) (*model.User, error) {
	user, err := s.userRepo.Lookup(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// TouchLastActive records user presence. Best effort, failures are logged
// and swallowed.
func (s *AuthService) TouchLastActive(ctx context.Context, userID uuid.UUID) {
	if err := s.userRepo.TouchLastActive(ctx, userID, time.Now()); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("failed to update last active")
	}
}
