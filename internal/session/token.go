package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the client can read from a JWT without the signing key.
type TokenInfo struct {
	UserID    string
	TokenType string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its exp claim at now. Tokens
// without exp never expire.
func (i *TokenInfo) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

// InspectToken parses token without verifying its signature. It is for
// display only; validity is decided by the backend.
func InspectToken(token string) (*TokenInfo, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	info := &TokenInfo{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	if v, ok := claims["user_id"]; ok {
		info.UserID = claimString(v)
	} else if sub, err := claims.GetSubject(); err == nil {
		info.UserID = sub
	}
	if v, ok := claims["token_type"]; ok {
		info.TokenType = claimString(v)
	}

	return info, nil
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprint(t)
	}
}
