package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer signs and verifies HS256 access tokens for API sessions.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer; ttl bounds the lifetime of issued tokens.
func NewTokenIssuer(secret, issuer string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a token carrying the user identity.
func (t *TokenIssuer) Issue(creds UserCredentials) (string, error) {
	now := time.Now().UTC()

	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(creds.ID, 10),
		"email": creds.Email,
		"admin": creds.IsAdmin,
		"iat":   now.Unix(),
		"exp":   now.Add(t.ttl).Unix(),
	}
	if t.issuer != "" {
		claims["iss"] = t.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify validates the signature and expiry and returns the claims map.
func (t *TokenIssuer) Verify(ctx context.Context, tokenString string) (map[string]interface{}, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}

	return map[string]interface{}(claims), nil
}

// VerifyFunc adapts the issuer to the JWT middleware.
func (t *TokenIssuer) VerifyFunc() VerifyFunc {
	return t.Verify
}
