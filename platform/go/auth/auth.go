package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ctxKey string

const (
	ctxUserCredentials ctxKey = "TRACKER_USER_CREDENTIALS"
)

// UserCredentials is the authenticated identity attached to the request
// context. ID matches the users table primary key.
type UserCredentials struct {
	ID      int64
	Email   string
	IsAdmin bool
}

func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	v := ctx.Value(ctxUserCredentials)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*UserCredentials)
	return u, ok
}

// WithUser stores credentials on the context; used by tests and the CLI.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxUserCredentials, creds)
}

// VerifyFunc validates the incoming JWT and returns its claims map.
type VerifyFunc func(ctx context.Context, token string) (map[string]interface{}, error)

// ExtractFunc converts a claims map into UserCredentials.
type ExtractFunc func(claims map[string]interface{}) (*UserCredentials, error)

// JWT parses the bearer token and sets the context credentials using the
// provided verify/extract functions. Requests without a valid token are
// rejected with 401; mount public routes outside this middleware.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractJWTToken(r)
			if token == "" || !found {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description="%s"`, err.Error()))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			creds, err := extract(claims)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="api", error="invalid_token", error_description="invalid claims"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserCredentials, creds)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ExtractJWTToken pulls the bearer token from the Authorization header.
func ExtractJWTToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// DefaultCredentialExtractor converts standard claims into UserCredentials.
func DefaultCredentialExtractor(claims map[string]interface{}) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	id, err := extractUserID(claims)
	if err != nil {
		return nil, err
	}

	creds := &UserCredentials{
		ID:      id,
		Email:   extractStringClaim(claims, "email"),
		IsAdmin: extractBoolClaim(claims, "admin"),
	}

	return creds, nil
}

func extractUserID(claims map[string]interface{}) (int64, error) {
	v, ok := claims["sub"]
	if !ok {
		return 0, errors.New("missing sub claim")
	}

	switch sub := v.(type) {
	case string:
		var id int64
		if _, err := fmt.Sscanf(sub, "%d", &id); err != nil {
			return 0, fmt.Errorf("invalid sub claim %q", sub)
		}
		return id, nil
	case float64:
		return int64(sub), nil
	case int64:
		return sub, nil
	default:
		return 0, errors.New("invalid sub claim type")
	}
}

func extractBoolClaim(claims map[string]interface{}, key string) bool {
	if v, ok := claims[key]; ok {
		if boolVal, valid := v.(bool); valid {
			return boolVal
		}
	}
	return false
}

func extractStringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key]; ok {
		if strVal, valid := v.(string); valid {
			return strVal
		}
	}
	return ""
}

// RequireRole gates endpoints behind a role carried in the credentials.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok || creds == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			switch role {
			case "admin":
				if !creds.IsAdmin {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			default:
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
