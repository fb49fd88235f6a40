package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"agentic-workflow/internal/domain"
	"agentic-workflow/internal/infra/logging"
)

// AuthManager mints and verifies HS256 bearer tokens. The subject is the
// owner id every job operation is scoped to.
type AuthManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewAuthManager(secret, issuer string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthManager{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

type OwnerClaims struct {
	jwt.RegisteredClaims
}

func (a *AuthManager) Mint(ownerID string) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", domain.ErrInvalidArgument
	}
	now := time.Now()
	claims := OwnerClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    a.issuer,
		Subject:   ownerID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseFromRequest reads "Authorization: Bearer <jwt>". Browsers cannot set
// headers on EventSource, so the access_token query parameter is accepted too.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*OwnerClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
		return nil, errors.New("malformed authorization header")
	}
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return a.parse(tok)
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*OwnerClaims, error) {
	claims := &OwnerClaims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

type ownerKey struct{}

// Authenticate rejects requests without a valid token and puts the owner id
// on the request context.
func (a *AuthManager) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), ownerKey{}, claims.Subject)
		ctx = logging.WithOwnerID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func ownerFrom(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}
