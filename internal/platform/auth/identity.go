package auth

import (
	"context"
	"slices"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Marketplace roles carried in the Firebase "role" custom claim.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleRider  = "rider"
	RoleAdmin  = "admin"
)

// Identity is the verified caller. Roles are lower-cased claim values.
type Identity struct {
	UID   string
	Email string
	Roles []string

	token *firebaseauth.Token
}

// Token returns the decoded Firebase ID token, or nil for identities built in tests.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// HasRole matches role case-insensitively.
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	return role != "" && slices.Contains(i.Roles, role)
}

func (i *Identity) IsAdmin() bool {
	return i.HasRole(RoleAdmin)
}

// CanActAs reports whether the caller may take the given marketplace role. Admins may take any.
func (i *Identity) CanActAs(role string) bool {
	return i.HasRole(role) || i.IsAdmin()
}

// IsParty reports whether the caller is one of the listed users. Empty ids never match.
func (i *Identity) IsParty(userIDs ...string) bool {
	if i == nil || i.UID == "" {
		return false
	}
	for _, id := range userIDs {
		if id != "" && id == i.UID {
			return true
		}
	}
	return false
}

// Owns is IsParty widened to admins.
func (i *Identity) Owns(userIDs ...string) bool {
	return i.IsAdmin() || i.IsParty(userIDs...)
}

type identityKey struct{}

// WithIdentity attaches the verified caller to ctx.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the caller attached by the authentication middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
