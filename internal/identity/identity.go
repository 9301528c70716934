package identity

import "fmt"

// Kind discriminates the two branches of a visitor identity.
type Kind int

const (
	// KindAuthenticated identifies a visitor by their account id.
	KindAuthenticated Kind = iota
	// KindAnonymous identifies a visitor by a minted visitor id.
	KindAnonymous
)

// Identity is a tagged union: exactly one of an authenticated account id
// or an anonymous visitor id identifies a physical visitor at a time.
// Consumers branch on Kind instead of probing optional fields.
type Identity struct {
	kind Kind
	id   string
}

// Authenticated builds an identity for a logged-in account.
func Authenticated(userID string) Identity {
	return Identity{kind: KindAuthenticated, id: userID}
}

// Anonymous builds an identity for a cookie-tracked visitor.
func Anonymous(visitorID string) Identity {
	return Identity{kind: KindAnonymous, id: visitorID}
}

func (v Identity) Kind() Kind { return v.kind }

// UserID returns the account id when the identity is authenticated.
func (v Identity) UserID() (string, bool) {
	if v.kind == KindAuthenticated {
		return v.id, v.id != ""
	}
	return "", false
}

// AnonymousID returns the visitor id when the identity is anonymous.
func (v Identity) AnonymousID() (string, bool) {
	if v.kind == KindAnonymous {
		return v.id, v.id != ""
	}
	return "", false
}

// IsZero reports whether no visitor could be identified.
func (v Identity) IsZero() bool { return v.id == "" }

// Ref is a stable printable reference for logs and analytics payloads.
func (v Identity) Ref() string {
	switch v.kind {
	case KindAuthenticated:
		return fmt.Sprintf("user:%s", v.id)
	default:
		return fmt.Sprintf("anon:%s", v.id)
	}
}
