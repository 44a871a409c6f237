// Package identity reads the bearer token issued by the external identity
// provider and extracts who the local user is. Tokens are never verified
// here; the remote services do that.
package identity

import (
	"NiralaChat/internal/chaterr"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var (
	ErrMissingToken = errors.New("missing identity token")
	ErrTokenExpired = errors.New("identity token has expired")
	ErrNoSubject    = errors.New("identity token has no subject")
)

// TokenSource yields the current identity token. An empty token means the
// user is signed out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Claims is the part of the identity token the chat core cares about.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// Subject returns user_id, falling back to the registered sub claim.
func (c *Claims) Subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.RegisteredClaims.Subject
}

// Inspect parses token without verifying its signature and rejects tokens
// that are empty, malformed, expired or carry no subject.
func Inspect(token string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, chaterr.AuthRequired("missing_token", ErrMissingToken)
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, chaterr.AuthRequired("malformed_token", err)
	}
	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(now) {
		return nil, chaterr.AuthRequired("token_expired", ErrTokenExpired)
	}
	if claims.Subject() == "" {
		return nil, chaterr.AuthRequired("token_without_subject", ErrNoSubject)
	}
	return claims, nil
}

// Resolve fetches the current token from src and inspects it.
func Resolve(ctx context.Context, src TokenSource) (string, *Claims, error) {
	if src == nil {
		return "", nil, chaterr.AuthRequired("no_token_source", ErrMissingToken)
	}
	token, err := src.Token(ctx)
	if err != nil {
		return "", nil, chaterr.AuthRequired("token_source_error", err)
	}
	claims, err := Inspect(token, time.Now())
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(token), claims, nil
}

// FileTokenSource reads the token from a file on every call, so the identity
// provider can rotate or remove it without restarting the agent.
type FileTokenSource struct {
	Path string
}

func (f FileTokenSource) Token(_ context.Context) (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("identity: read token file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// StaticTokenSource holds a token in memory. Set replaces it; an empty
// token signs the user out.
type StaticTokenSource struct {
	mu    sync.RWMutex
	token string
}

func NewStaticTokenSource(token string) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, nil
}

func (s *StaticTokenSource) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}
