package auth

import (
	"slices"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const (
	defaultRoleClaim  = "role"
	defaultEmailClaim = "email"
)

// tokenClaims reads the custom claims Firebase carries on a verified ID token.
type tokenClaims map[string]any

func claimsOf(token *firebaseauth.Token) tokenClaims {
	if token == nil {
		return nil
	}
	return tokenClaims(token.Claims)
}

func (c tokenClaims) text(key string) string {
	v, _ := c[key].(string)
	return strings.TrimSpace(v)
}

// roles accepts "seller", ["seller", "buyer"] or {"seller": true}. Output is normalised,
// deduplicated and sorted.
func (c tokenClaims) roles(key string) []string {
	var out []string
	add := func(role string) {
		if role = normaliseRole(role); role != "" && !slices.Contains(out, role) {
			out = append(out, role)
		}
	}
	switch v := c[key].(type) {
	case string:
		add(v)
	case []string:
		for _, role := range v {
			add(role)
		}
	case []any:
		for _, item := range v {
			if role, ok := item.(string); ok {
				add(role)
			}
		}
	case map[string]any:
		for role, flag := range v {
			if on, _ := flag.(bool); on {
				add(role)
			}
		}
	}
	slices.Sort(out)
	return out
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// bearerToken extracts the credential from an Authorization header value.
func bearerToken(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
		return "", false
	}
	return fields[1], true
}
