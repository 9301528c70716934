package identity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	// VisitorCookie carries the anonymous visitor id between requests.
	VisitorCookie = "cohort_vid"
	// UserHeader is set by the outer authentication layer for logged-in
	// accounts. The engine treats its value as an opaque account id.
	UserHeader = "X-Cohort-User"

	cookieMaxAge = int(365 * 24 * time.Hour / time.Second)
)

// VisitorStore is the slice of storage the resolver needs.
type VisitorStore interface {
	EnsureAnonymousVisitor(ctx context.Context, id string) error
	ConfirmHuman(ctx context.Context, id string) error
}

// Resolver turns an inbound request into a visitor identity. Authenticated
// accounts win over the anonymous cookie; a missing cookie mints a new
// visitor and sets the cookie on the response.
type Resolver struct {
	visitors VisitorStore
}

func NewResolver(visitors VisitorStore) *Resolver {
	return &Resolver{visitors: visitors}
}

func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) (Identity, error) {
	if userID := req.Header.Get(UserHeader); userID != "" {
		return Authenticated(userID), nil
	}

	if cookie, err := req.Cookie(VisitorCookie); err == nil && cookie.Value != "" {
		// Re-ensure the row so a stale cookie from a wiped database
		// still resolves to a durable visitor.
		if err := r.visitors.EnsureAnonymousVisitor(req.Context(), cookie.Value); err != nil {
			return Identity{}, fmt.Errorf("ensure anonymous visitor: %w", err)
		}
		return Anonymous(cookie.Value), nil
	}

	id := uuid.NewString()
	if err := r.visitors.EnsureAnonymousVisitor(req.Context(), id); err != nil {
		return Identity{}, fmt.Errorf("create anonymous visitor: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   cookieMaxAge,
		SameSite: http.SameSiteLaxMode,
	})
	return Anonymous(id), nil
}

// ConfirmHuman marks the request's visitor as non-bot. Authenticated
// accounts are implicitly human, so only the anonymous branch persists
// anything.
func (r *Resolver) ConfirmHuman(w http.ResponseWriter, req *http.Request) error {
	visitor, err := r.Resolve(w, req)
	if err != nil {
		return err
	}
	if id, ok := visitor.AnonymousID(); ok {
		return r.visitors.ConfirmHuman(req.Context(), id)
	}
	return nil
}
