package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")

	// AccessTokenQueryParam carries the token for browser realtime clients,
	// which cannot set headers on WebSocket or EventSource requests.
	AccessTokenQueryParam = "access_token"

	tokenIssuer = "status-service"
)

var (
	ErrTokenMissing = errors.New("access token missing")
	ErrTokenInvalid = errors.New("access token invalid or expired")
)

// AuthenticatedUser holds information about the authenticated user.
type AuthenticatedUser struct {
	ID       string
	Username string
	RoleID   string
	IsAdmin  bool
}

// HasRole reports whether the user may act as role. Admins hold every role.
func (u AuthenticatedUser) HasRole(role string) bool {
	return u.IsAdmin || (role != "" && u.RoleID == role)
}

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (AuthenticatedUser, bool) {
	u, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return u, ok
}

// CallerID returns the authenticated user's ID, or "" for anonymous requests.
func CallerID(r *http.Request) string {
	u, _ := UserFromContext(r.Context())
	return u.ID
}

type accessClaims struct {
	Username string `json:"unm"`
	RoleID   string `json:"rol"`
	IsAdmin  bool   `json:"adm"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 access tokens issued with the shared secret.
type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Issue signs an access token for user valid for ttl.
func (v *TokenVerifier) Issue(user AuthenticatedUser, ttl time.Duration) (string, error) {
	now := v.now()
	claims := accessClaims{
		Username: user.Username,
		RoleID:   user.RoleID,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenString and returns the user it names.
func (v *TokenVerifier) Verify(tokenString string) (AuthenticatedUser, error) {
	if tokenString == "" {
		return AuthenticatedUser{}, ErrTokenMissing
	}

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil || !token.Valid {
		return AuthenticatedUser{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return AuthenticatedUser{}, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}

	return AuthenticatedUser{
		ID:       claims.Subject,
		Username: claims.Username,
		RoleID:   claims.RoleID,
		IsAdmin:  claims.IsAdmin,
	}, nil
}

// AuthMiddleware creates a middleware for authenticating requests. GET
// requests may pass the token in the access_token query parameter instead
// of the Authorization header.
func AuthMiddleware(verifier *TokenVerifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := extractToken(r)
			if err != nil {
				logger.WarnContext(r.Context(), "Rejected request credentials", "error", err, "path", r.URL.Path)
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}

			user, err := verifier.Verify(tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if r.Method == http.MethodGet {
			if token := r.URL.Query().Get(AccessTokenQueryParam); token != "" {
				return token, nil
			}
		}
		return "", ErrTokenMissing
	}

	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("invalid Authorization header format")
	}
	return strings.TrimSpace(token), nil
}

// RequireRole rejects authenticated users that do not hold role.
func RequireRole(role string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "AuthenticatedUser not found in context. AuthMiddleware must run first.")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if !user.HasRole(role) {
				logger.WarnContext(r.Context(), "Role check failed",
					"userID", user.ID, "required_role", role, "user_role", user.RoleID)
				http.Error(w, "Forbidden: you don't have permission to perform this action.", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
