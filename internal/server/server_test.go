package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cohort-run/cohort/internal/analytics"
	"github.com/cohort-run/cohort/internal/assign"
	"github.com/cohort-run/cohort/internal/goals"
	"github.com/cohort-run/cohort/internal/identity"
	"github.com/cohort-run/cohort/internal/logger"
	"github.com/cohort-run/cohort/internal/metrics"
	"github.com/cohort-run/cohort/internal/report"
	"github.com/cohort-run/cohort/internal/server"
	"github.com/cohort-run/cohort/internal/store"
	"github.com/cohort-run/cohort/internal/testutil"
)

func setupServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()

	s := testutil.SetupTestStore(t)
	log := logger.Nop()
	forwarder := analytics.New(analytics.NopSink{}, 8, log)
	t.Cleanup(forwarder.Close)

	registry := prometheus.NewRegistry()
	srv := server.New(server.Config{
		Store:    s,
		Resolver: identity.NewResolver(s),
		Assigner: assign.NewService(s, forwarder, log),
		Recorder: goals.NewRecorder(s, forwarder, log),
		Builder:  report.NewBuilder(s, report.NewEngine(s, s), log),
		Registry: registry,
		Metrics:  metrics.New(registry),
		Log:      log,
		Port:     0,
	})
	return srv, s
}

func visitorCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == identity.VisitorCookie {
			return c
		}
	}
	return nil
}

func TestGoalPixel_AlwaysServesImage(t *testing.T) {
	srv, s := setupServer(t)
	if _, err := s.CreateGoalType(context.Background(), "purchase"); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"/g/purchase.png", // registered goal
		"/g/mystery.png",  // unknown goal
		"/g/.png",         // no goal at all
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200", path, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
			t.Errorf("%s: content type %q, want image/png", path, ct)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
			t.Errorf("%s: body is not a PNG", path)
		}
	}
}

func TestGoalPixel_MintsVisitorCookie(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/g/purchase.png", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	cookie := visitorCookie(rec.Result())
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected a minted visitor cookie")
	}
}

func TestConfirm(t *testing.T) {
	srv, s := setupServer(t)
	ctx := context.Background()

	if err := s.EnsureAnonymousVisitor(ctx, "vid-1"); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/confirm", nil)
	req.AddCookie(&http.Cookie{Name: identity.VisitorCookie, Value: "vid-1"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}

	visitor, err := s.GetAnonymousVisitor(ctx, "vid-1")
	if err != nil {
		t.Fatal(err)
	}
	if !visitor.ConfirmedHuman {
		t.Error("visitor should be confirmed after POST /confirm")
	}
}

func TestConfirm_RequiresPost(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/confirm", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status %d, want 405", rec.Code)
	}
}

func TestAssignEndpoint(t *testing.T) {
	srv, s := setupServer(t)
	testutil.EnabledExperiment(t, s, "signup-flow")

	// Authenticated visitors are assigned directly.
	req := httptest.NewRequest(http.MethodGet, "/a?experiment=signup-flow", nil)
	req.Header.Set(identity.UserHeader, "user-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp server.AssignResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Enrolled {
		t.Error("authenticated visitor should be enrolled")
	}
	if resp.Group != "control" && resp.Group != "test" {
		t.Errorf("group = %q, want control or test", resp.Group)
	}

	// The same user gets the same group back.
	rec2 := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec2, req.Clone(req.Context()))
	var resp2 server.AssignResponse
	if err := json.NewDecoder(rec2.Body).Decode(&resp2); err != nil {
		t.Fatal(err)
	}
	if resp2.Group != resp.Group {
		t.Errorf("group changed between requests: %q vs %q", resp.Group, resp2.Group)
	}
}

func TestAssignEndpoint_UnconfirmedAnonymous(t *testing.T) {
	srv, s := setupServer(t)
	testutil.EnabledExperiment(t, s, "signup-flow")

	// A fresh anonymous visitor is unconfirmed and therefore not enrolled.
	req := httptest.NewRequest(http.MethodGet, "/a?experiment=signup-flow", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp server.AssignResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Enrolled {
		t.Error("unconfirmed anonymous visitor must not be enrolled")
	}
}

func TestAssignEndpoint_UnknownExperiment(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/a?experiment=missing", nil)
	req.Header.Set(identity.UserHeader, "user-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp server.AssignResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Enrolled {
		t.Error("unknown experiment must answer enrolled=false, not an error")
	}
}

func TestAdminAuth(t *testing.T) {
	srv, _ := setupServer(t)

	// No token: unauthorized.
	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status %d, want 401", rec.Code)
	}

	// Wrong token: unauthorized.
	req = httptest.NewRequest(http.MethodGet, "/api/experiments?token=wrong", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status %d, want 401", rec.Code)
	}

	// Valid token in the query: sets the cookie and redirects.
	req = httptest.NewRequest(http.MethodGet, "/api/experiments?token="+srv.Token(), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("good token: status %d, want 302", rec.Code)
	}
	var authCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if strings.Contains(c.Name, "token") {
			authCookie = c
		}
	}
	if authCookie == nil {
		t.Fatal("expected an auth cookie")
	}

	// Valid cookie: allowed through.
	req = httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.AddCookie(authCookie)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cookie auth: status %d, want 200", rec.Code)
	}
}

func TestAdminExperimentLifecycle(t *testing.T) {
	srv, _ := setupServer(t)

	do := func(method, path string, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body != "" {
			req = httptest.NewRequest(method, path, strings.NewReader(body))
		} else {
			req = httptest.NewRequest(method, path, nil)
		}
		req.AddCookie(&http.Cookie{Name: "cohort_token", Value: srv.Token()})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	// Create.
	rec := do(http.MethodPost, "/api/experiments", `{"name":"signup-flow"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d, want 201", rec.Code)
	}

	// Enable through the state endpoint.
	rec = do(http.MethodPost, "/api/experiments/signup-flow/state", `{"state":"enabled"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable: status %d, want 200", rec.Code)
	}
	var expResp server.ExperimentResponse
	if err := json.NewDecoder(rec.Body).Decode(&expResp); err != nil {
		t.Fatal(err)
	}
	if expResp.State != "enabled" || expResp.StartDate == "" {
		t.Errorf("enable response = %+v, want enabled with a start date", expResp)
	}

	// List includes it.
	rec = do(http.MethodGet, "/api/experiments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d, want 200", rec.Code)
	}
	var list []server.ExperimentResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "signup-flow" {
		t.Errorf("list = %+v, want the created experiment", list)
	}

	// Unknown experiment: 404.
	rec = do(http.MethodGet, "/api/experiments/missing/daily", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown daily: status %d, want 404", rec.Code)
	}

	// Daily series over an explicit window.
	rec = do(http.MethodGet, "/api/experiments/signup-flow/daily?start=2026-08-01&end=2026-08-02", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("daily: status %d, want 200", rec.Code)
	}
	var entries []report.DailyEntry
	if err := json.NewDecoder(rec.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("daily entries = %d, want 2", len(entries))
	}
}

func TestAdminActivityIngest(t *testing.T) {
	srv, s := setupServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/activity",
		strings.NewReader(`{"user_id":"u1","date":"2026-08-01","score":2.5}`))
	req.AddCookie(&http.Cookie{Name: "cohort_token", Value: srv.Token()})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d, want 204", rec.Code)
	}

	scores, err := s.VisitorScores(context.Background(), testutil.Date(2026, 8, 1))
	if err != nil {
		t.Fatal(err)
	}
	if scores["user:u1"] != 2.5 {
		t.Errorf("scores = %v, want user:u1 -> 2.5", scores)
	}
}

func TestHealth(t *testing.T) {
	srv, s := setupServer(t)
	testutil.EnabledExperiment(t, s, "signup-flow")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	var resp server.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.ExperimentsCount != 1 {
		t.Errorf("health = %+v, want ok with 1 experiment", resp)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "cohort_") {
		t.Error("expected cohort metrics in exposition output")
	}
}
