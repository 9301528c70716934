package identity_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/testutil"
)

func TestIdentityKinds(t *testing.T) {
	auth := identity.Authenticated("u1")
	if id, ok := auth.UserID(); !ok || id != "u1" {
		t.Errorf("UserID = %q/%v, want u1/true", id, ok)
	}
	if _, ok := auth.AnonymousID(); ok {
		t.Error("authenticated identity should have no anonymous id")
	}
	if auth.Ref() != "user:u1" {
		t.Errorf("Ref = %q, want user:u1", auth.Ref())
	}

	anon := identity.Anonymous("vid-1")
	if anon.Ref() != "anon:vid-1" {
		t.Errorf("Ref = %q, want anon:vid-1", anon.Ref())
	}

	if !(identity.Identity{}).IsZero() {
		t.Error("zero identity should report IsZero")
	}
	if auth.IsZero() || anon.IsZero() {
		t.Error("populated identities should not report IsZero")
	}
}

func TestResolve_HeaderWinsOverCookie(t *testing.T) {
	s := testutil.SetupTestStore(t)
	resolver := identity.NewResolver(s)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(identity.UserHeader, "u1")
	req.AddCookie(&http.Cookie{Name: identity.VisitorCookie, Value: "vid-1"})

	visitor, err := resolver.Resolve(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatal(err)
	}
	if id, ok := visitor.UserID(); !ok || id != "u1" {
		t.Errorf("expected the authenticated identity, got %s", visitor.Ref())
	}
}

func TestResolve_MintsCookieOnce(t *testing.T) {
	s := testutil.SetupTestStore(t)
	resolver := identity.NewResolver(s)

	// First request: a visitor id is minted and set as a cookie.
	rec := httptest.NewRecorder()
	first, err := resolver.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	id, ok := first.AnonymousID()
	if !ok || id == "" {
		t.Fatalf("expected a minted anonymous identity, got %s", first.Ref())
	}

	var minted *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == identity.VisitorCookie {
			minted = c
		}
	}
	if minted == nil || minted.Value != id {
		t.Fatal("minted id should be set as the visitor cookie")
	}

	// The row is durable.
	if _, err := s.GetAnonymousVisitor(context.Background(), id); err != nil {
		t.Fatalf("minted visitor should be persisted: %v", err)
	}

	// Second request with that cookie resolves to the same identity and
	// sets nothing new.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(minted)
	rec2 := httptest.NewRecorder()
	second, err := resolver.Resolve(rec2, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.Ref() != first.Ref() {
		t.Errorf("identity changed between requests: %s vs %s", first.Ref(), second.Ref())
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Error("no new cookie should be set for a returning visitor")
	}
}

func TestConfirmHuman_AnonymousOnly(t *testing.T) {
	s := testutil.SetupTestStore(t)
	resolver := identity.NewResolver(s)

	if err := s.EnsureAnonymousVisitor(context.Background(), "vid-1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/confirm", nil)
	req.AddCookie(&http.Cookie{Name: identity.VisitorCookie, Value: "vid-1"})
	if err := resolver.ConfirmHuman(httptest.NewRecorder(), req); err != nil {
		t.Fatal(err)
	}

	visitor, err := s.GetAnonymousVisitor(context.Background(), "vid-1")
	if err != nil {
		t.Fatal(err)
	}
	if !visitor.ConfirmedHuman {
		t.Error("visitor should be confirmed")
	}

	// Authenticated requests confirm nothing and do not error.
	authReq := httptest.NewRequest(http.MethodPost, "/confirm", nil)
	authReq.Header.Set(identity.UserHeader, "u1")
	if err := resolver.ConfirmHuman(httptest.NewRecorder(), authReq); err != nil {
		t.Errorf("authenticated confirm should be a no-op, got %v", err)
	}
}

