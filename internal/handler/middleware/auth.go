package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clashsync/internal/config"
	"github.com/clashsync/internal/domain"
)

type contextKey string

const userKey contextKey = "user"

// UserResolver loads or creates the member behind a verified identity
type UserResolver interface {
	EnsureUser(ctx context.Context, identity domain.Identity) (*domain.User, error)
}

// Claims are the bearer token claims issued by the identity provider
type Claims struct {
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens and attaches the caller's user
// record to the request context.
type Authenticator struct {
	secret []byte
	issuer string
	users  UserResolver
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator from auth configuration
func NewAuthenticator(cfg *config.AuthConfig, users UserResolver, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		users:  users,
		logger: logger,
	}
}

// Middleware rejects requests without a valid token. Browsers cannot set
// headers on WebSocket upgrades, so a "token" query parameter is accepted too.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr := bearerToken(r)
		if tokenStr == "" {
			writeUnauthorized(w, "missing or invalid token")
			return
		}

		identity, err := a.Verify(tokenStr)
		if err != nil {
			a.logger.Debug("token rejected", "error", err)
			writeUnauthorized(w, "invalid or expired token")
			return
		}

		user, err := a.users.EnsureUser(r.Context(), identity)
		if err != nil {
			if domain.IsValidationError(err) {
				writeUnauthorized(w, err.Error())
				return
			}
			a.logger.Error("failed to load user", "user_id", identity.UserID, "error", err)
			writeJSONError(w, http.StatusInternalServerError, domain.ErrInternalError.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Verify checks the token signature and claims and returns the identity
func (a *Authenticator) Verify(tokenStr string) (domain.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, err
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}

	return domain.Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		FullName: claims.Name,
		Picture:  claims.Picture,
	}, nil
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// RequireAdmin rejects callers without the admin role. It must run after
// Authenticator.Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok {
			writeUnauthorized(w, domain.ErrUnauthorized.Error())
			return
		}
		if !user.IsAdmin() {
			writeJSONError(w, http.StatusForbidden, domain.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithUser returns a context carrying user
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext extracts the authenticated user from the context
func UserFromContext(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(userKey).(*domain.User)
	return user, ok && user != nil
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	writeJSONError(w, http.StatusUnauthorized, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
