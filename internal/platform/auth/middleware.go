package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/marketline/api/internal/platform/httpx"
)

const defaultVerifyTimeout = 5 * time.Second

var (
	// ErrTokenExpired marks an ID token past its expiry.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid marks an ID token rejected for any other reason.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator resolves the caller Identity from a Firebase bearer token.
type Authenticator struct {
	verifier     TokenVerifier
	roleClaim    string
	fallbackRole string
	timeout      time.Duration
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithRoleClaim names the custom claim holding roles.
func WithRoleClaim(claim string) Option {
	return func(a *Authenticator) {
		if claim = strings.TrimSpace(claim); claim != "" {
			a.roleClaim = claim
		}
	}
}

// WithFallbackRole sets the role granted to tokens without one.
func WithFallbackRole(role string) Option {
	return func(a *Authenticator) {
		if role = normaliseRole(role); role != "" {
			a.fallbackRole = role
		}
	}
}

// WithVerificationTimeout bounds each token verification.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator returns an Authenticator. A nil verifier rejects every request.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:     verifier,
		roleClaim:    defaultRoleClaim,
		fallbackRole: RoleBuyer,
		timeout:      defaultVerifyTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Authenticate verifies the request's bearer token and builds its Identity.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	raw, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, httpx.NewError("unauthenticated", "authorization header missing or invalid", http.StatusUnauthorized)
	}
	if a == nil || a.verifier == nil {
		return nil, httpx.NewError("unauthenticated", "authorization service unavailable", http.StatusUnauthorized)
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()
	token, err := a.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, rejection(err)
	}

	claims := claimsOf(token)
	identity := &Identity{
		UID:   token.UID,
		Email: claims.text(defaultEmailClaim),
		Roles: claims.roles(a.roleClaim),
		token: token,
	}
	if len(identity.Roles) == 0 && a.fallbackRole != "" {
		identity.Roles = []string{a.fallbackRole}
	}
	return identity, nil
}

// RequireFirebaseAuth rejects requests without a valid token. With roles given, the identity
// must also hold one of them.
func (a *Authenticator) RequireFirebaseAuth(roles ...string) func(http.Handler) http.Handler {
	var required []string
	for _, role := range roles {
		if role = normaliseRole(role); role != "" {
			required = append(required, role)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := a.Authenticate(r)
			if err != nil {
				var rejected httpx.Error
				if !errors.As(err, &rejected) {
					rejected = rejection(err)
				}
				httpx.WriteError(r.Context(), w, rejected)
				return
			}
			if len(required) > 0 && !slices.ContainsFunc(required, identity.HasRole) {
				httpx.WriteError(r.Context(), w, httpx.NewError("insufficient_role", "identity does not have required role", http.StatusForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func rejection(err error) httpx.Error {
	if errors.Is(err, ErrTokenExpired) || firebaseauth.IsIDTokenExpired(err) {
		return httpx.NewError("token_expired", "firebase id token expired", http.StatusUnauthorized)
	}
	message := "firebase id token verification failed"
	if errors.Is(err, ErrTokenInvalid) || firebaseauth.IsIDTokenInvalid(err) {
		message = "firebase id token invalid"
	}
	return httpx.NewError("invalid_token", message, http.StatusUnauthorized)
}
