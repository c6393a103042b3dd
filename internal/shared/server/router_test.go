package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"consensus-backend/internal/analyses"
	"consensus-backend/internal/consensus"
	"consensus-backend/internal/llm"
	"consensus-backend/internal/services/health"
	"consensus-backend/internal/shared/auth"
	"consensus-backend/internal/shared/config"
	"consensus-backend/internal/shared/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.SetOutput(io.Discard)
	code := m.Run()
	telemetry.SetOutput(os.Stdout)
	os.Exit(code)
}

type fixedAdapter struct{}

func (fixedAdapter) Name() string { return "fixed" }

func (fixedAdapter) Analyze(context.Context, string, string) (llm.Payload, error) {
	return llm.Payload{"strengths": []any{}, "weaknesses": []any{}, "opportunities": []any{}, "threats": []any{}}, nil
}

func newTestRouter(t *testing.T, checks *health.Service) (*gin.Engine, *analyses.Service) {
	t.Helper()
	registry := llm.NewRegistry(fixedAdapter{})
	svc := analyses.NewService(
		analyses.NewMemoryRepo(),
		consensus.NewCoordinator(registry, consensus.NewHeuristicScorer(consensus.FixedNoise(0))),
		analyses.Options{Providers: registry.Names()},
	)
	t.Cleanup(svc.Wait)

	cfg := config.Config{
		Env:                 "dev",
		CORSAllowOrigin:     []string{"http://localhost:5173"},
		JWTSecret:           "router-secret",
		SubmitRatePerMinute: 2,
		PollInterval:        2 * time.Second,
	}
	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.Env)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return NewRouter(RouterDeps{
		Config:          cfg,
		AnalysisHandler: analyses.NewHandler(svc),
		Health:          checks,
		Signer:          signer,
	}), svc
}

func serve(router *gin.Engine, method, path, user string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	for _, path := range []string{"/health", "/api/v1/health"} {
		if resp := serve(router, http.MethodGet, path, "", ""); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, resp.Code)
		}
	}

	resp := serve(router, http.MethodGet, "/metrics", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	if !strings.HasPrefix(resp.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
}

func TestHealthReportsStoreFailure(t *testing.T) {
	checks := health.NewService()
	checks.Register("job_store", func(context.Context) error { return errors.New("connection refused") })
	router, _ := newTestRouter(t, checks)

	resp := serve(router, http.MethodGet, "/health", "", "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", resp.Code)
	}
}

func TestMeReturnsIdentity(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	if resp := serve(router, http.MethodGet, "/api/v1/me", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without identity, got %d", resp.Code)
	}

	resp := serve(router, http.MethodGet, "/api/v1/me", "alice", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body struct {
		UserID  string `json:"userId"`
		DevUser bool   `json:"devUser"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "dev:alice" || !body.DevUser {
		t.Fatalf("unexpected identity: %+v", body)
	}
}

func TestMeAcceptsTokenSignedWithConfiguredSecret(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	signer, err := auth.NewSigner("router-secret", "dev")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	token, err := signer.Sign(auth.Claims{Email: "bob@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var body struct {
		UserID string `json:"userId"`
		Email  string `json:"email"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.UserID != "bob" || body.Email != "bob@example.com" {
		t.Fatalf("unexpected identity: %+v", body)
	}

	other, err := auth.NewSigner("some-other-secret", "dev")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	forged, err := other.Sign(auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "bob"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for foreign secret, got %d", resp.Code)
	}
}

func TestSubmitIsRateLimited(t *testing.T) {
	router, svc := newTestRouter(t, nil)

	payload := `{"business_input":"Community bike workshop"}`
	for i := 0; i < 2; i++ {
		if resp := serve(router, http.MethodPost, "/api/v1/analyses", "alice", payload); resp.Code != http.StatusAccepted {
			t.Fatalf("submit %d: expected status 202, got %d", i, resp.Code)
		}
	}
	resp := serve(router, http.MethodPost, "/api/v1/analyses", "alice", payload)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	if resp := serve(router, http.MethodPost, "/api/v1/analyses", "bob", payload); resp.Code != http.StatusAccepted {
		t.Fatalf("expected another user to have its own bucket, got %d", resp.Code)
	}
	svc.Wait()
}

func TestAddr(t *testing.T) {
	cases := map[string]string{"": ":8080", "9000": ":9000", ":7000": ":7000"}
	for in, want := range cases {
		if got := Addr(in); got != want {
			t.Fatalf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}
