package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"aksara/internal/models"
	"aksara/internal/redis"
)

// TokenKind distinguishes short-lived access tokens from refresh tokens.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"

	TokenType        = "bearer"
	redisTokenPrefix = "auth:token:"
)

var (
	ErrTokenRequired = errors.New("token required")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token expired")
)

// Service issues, validates, and revokes user authentication tokens.
type Service struct {
	db         *sql.DB
	cache      *redis.Client
	accessTTL  time.Duration
	refreshTTL time.Duration
	headerName string
}

// NewService constructs an auth service with the supplied token lifetimes.
func NewService(db *sql.DB, cache *redis.Client, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 24 * time.Hour
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		db:         db,
		cache:      cache,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		headerName: "Authorization",
	}
}

// IssuePair mints an access and a refresh token for the user.
func (s *Service) IssuePair(ctx context.Context, user *models.User) (*models.AuthResponse, error) {
	if user == nil {
		return nil, errors.New("user required")
	}
	access, err := s.IssueToken(ctx, user.ID, KindAccess)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueToken(ctx, user.ID, KindRefresh)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenType,
		User:         *user,
	}, nil
}

// IssueToken mints a new random token of the given kind and persists it.
func (s *Service) IssueToken(ctx context.Context, userID string, kind TokenKind) (string, error) {
	if userID == "" {
		return "", errors.New("invalid user id")
	}
	ttl := s.ttl(kind)
	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	for i := 0; i < 5; i++ {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO user_tokens (token, user_id, kind, created_at, expires_at) VALUES (?, ?, ?, ?, ?)`,
			token, userID, string(kind), now, expiresAt,
		)
		if err == nil {
			if s.cache.Enabled() {
				_ = s.cache.Set(ctx, cacheKey(kind, token), userID, ttl)
			}
			return token, nil
		}
	}
	return "", errors.New("could not issue token")
}

// ValidateToken verifies the token exists, matches kind and has not expired,
// returning the user id.
func (s *Service) ValidateToken(ctx context.Context, token string, kind TokenKind) (string, error) {
	if token == "" {
		return "", ErrTokenRequired
	}
	if s.cache.Enabled() {
		if userID, err := s.cache.Get(ctx, cacheKey(kind, token)); err == nil && userID != "" {
			return userID, nil
		}
	}
	var (
		userID  string
		stored  string
		expires time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, kind, expires_at FROM user_tokens WHERE token = ?`, token,
	).Scan(&userID, &stored, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("lookup token: %w", err)
	}
	if TokenKind(stored) != kind {
		return "", ErrInvalidToken
	}
	if time.Now().UTC().After(expires) {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token)
		return "", ErrTokenExpired
	}
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey(kind, token), userID, time.Until(expires))
	}
	return userID, nil
}

// RevokeToken deletes a single token.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE token = ?`, token); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if s.cache.Enabled() {
		_ = s.cache.Del(ctx, cacheKey(KindAccess, token), cacheKey(KindRefresh, token))
	}
	return nil
}

// RevokeUserTokens removes all tokens belonging to the user.
func (s *Service) RevokeUserTokens(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	var keys []string
	if s.cache.Enabled() {
		rows, err := s.db.QueryContext(ctx, `SELECT token, kind FROM user_tokens WHERE user_id = ?`, userID)
		if err != nil {
			return fmt.Errorf("list user tokens: %w", err)
		}
		for rows.Next() {
			var token, kind string
			if err := rows.Scan(&token, &kind); err != nil {
				rows.Close()
				return fmt.Errorf("scan token: %w", err)
			}
			keys = append(keys, cacheKey(TokenKind(kind), token))
		}
		rows.Close()
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}
	if len(keys) > 0 {
		_ = s.cache.Del(ctx, keys...)
	}
	return nil
}

// AccessTTL reports the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration {
	return s.accessTTL
}

func (s *Service) ttl(kind TokenKind) time.Duration {
	if kind == KindRefresh {
		return s.refreshTTL
	}
	return s.accessTTL
}

func cacheKey(kind TokenKind, token string) string {
	return redisTokenPrefix + string(kind) + ":" + token
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
