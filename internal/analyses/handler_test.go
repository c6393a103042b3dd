package analyses

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"consensus-backend/internal/shared/server/middleware"
)

func setupAnalysisRouter(t *testing.T) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := newTestService(NewMemoryRepo(),
		&stubAdapter{name: "deepseek", payload: fullSWOT()},
		&stubAdapter{name: "gemini", payload: halfSWOT()},
	)
	handler := NewHandler(svc)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Auth("dev", nil))
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)
	return router, handler
}

func doRequest(router *gin.Engine, method, path, user string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", resp.Body.String(), err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func submit(t *testing.T, router *gin.Engine, user string, body any) string {
	t.Helper()
	resp := doRequest(router, http.MethodPost, "/api/v1/analyses", user, body)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Status != StatusPending {
		t.Fatalf("unexpected create response: %+v", created)
	}
	return created.ID
}

func TestCreateAndPollAnalysis(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	id := submit(t, router, "alice", map[string]any{
		"business_input": "Subscription box for houseplants",
		"frameworks":     []string{"swot"},
	})
	handler.Svc.Wait()

	resp := doRequest(router, http.MethodGet, "/api/v1/analyses/"+id, "alice", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var job Job
	decodeBody(t, resp, &job)
	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", job.Status)
	}
	if job.OwnerID != "dev:alice" {
		t.Fatalf("expected owner from header identity, got %q", job.OwnerID)
	}
	if len(job.Results["swot"]) != 2 {
		t.Fatalf("expected results for both default providers, got %+v", job.Results)
	}
	if job.FrameworkConsensus["swot"].Methodology == "" {
		t.Fatalf("expected framework consensus in response")
	}
}

func TestCreateAnalysisValidation(t *testing.T) {
	router, _ := setupAnalysisRouter(t)

	resp := doRequest(router, http.MethodPost, "/api/v1/analyses", "alice", map[string]any{
		"business_input": "Tea",
		"frameworks":     []string{"tarot"},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != ErrorCodeValidation || env.Error.Message != "unknown framework: tarot" {
		t.Fatalf("unexpected error envelope: %+v", env)
	}

	resp = doRequest(router, http.MethodPost, "/api/v1/analyses", "", map[string]any{"business_input": "Tea shop"})
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 without identity, got %d", resp.Code)
	}
}

func TestGetAnalysisScopedToOwner(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	id := submit(t, router, "alice", map[string]any{"business_input": "Escape room venue"})
	handler.Svc.Wait()

	resp := doRequest(router, http.MethodGet, "/api/v1/analyses/"+id, "mallory", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != ErrorCodeNotFound {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}
}

func TestCancelCompletedAnalysisConflicts(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	id := submit(t, router, "alice", map[string]any{"business_input": "Climbing gym"})
	handler.Svc.Wait()

	resp := doRequest(router, http.MethodPost, "/api/v1/analyses/"+id+"/cancel", "alice", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", resp.Code)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if env.Error.Code != ErrorCodeNotCancellable {
		t.Fatalf("unexpected error code %q", env.Error.Code)
	}

	resp = doRequest(router, http.MethodPost, "/api/v1/analyses/unknown/cancel", "alice", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for unknown job, got %d", resp.Code)
	}
}

func TestDeleteAndBulkDelete(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	first := submit(t, router, "alice", map[string]any{"business_input": "Board game cafe"})
	second := submit(t, router, "alice", map[string]any{"business_input": "Pottery classes"})
	third := submit(t, router, "alice", map[string]any{"business_input": "Juice bar"})
	handler.Svc.Wait()

	resp := doRequest(router, http.MethodDelete, "/api/v1/analyses/"+first, "alice", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	resp = doRequest(router, http.MethodGet, "/api/v1/analyses/"+first, "alice", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected deleted job to 404, got %d", resp.Code)
	}

	resp = doRequest(router, http.MethodPost, "/api/v1/analyses/bulk-delete", "alice", map[string]any{"ids": []string{}})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for empty ids, got %d", resp.Code)
	}

	resp = doRequest(router, http.MethodPost, "/api/v1/analyses/bulk-delete", "alice", map[string]any{
		"ids": []string{first, second, third},
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var out struct {
		DeletedCount int `json:"deleted_count"`
	}
	decodeBody(t, resp, &out)
	if out.DeletedCount != 2 {
		t.Fatalf("expected 2 deleted, got %d", out.DeletedCount)
	}
}

func TestListAnalyses(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	submit(t, router, "alice", map[string]any{"business_input": "Dog walking app"})
	submit(t, router, "alice", map[string]any{"business_input": "Cat cafe"})
	submit(t, router, "bob", map[string]any{"business_input": "Dog treats bakery"})
	handler.Svc.Wait()

	resp := doRequest(router, http.MethodGet, "/api/v1/analyses?search=dog", "alice", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var out struct {
		Analyses []jobSummary `json:"analyses"`
		Limit    int          `json:"limit"`
	}
	decodeBody(t, resp, &out)
	if len(out.Analyses) != 1 || out.Analyses[0].BusinessInput != "Dog walking app" {
		t.Fatalf("unexpected list: %+v", out.Analyses)
	}
	if out.Limit != 20 {
		t.Fatalf("expected default limit 20, got %d", out.Limit)
	}

	resp = doRequest(router, http.MethodGet, "/api/v1/analyses?status=bogus", "alice", nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad status, got %d", resp.Code)
	}
}

func TestCatalogRoutes(t *testing.T) {
	router, _ := setupAnalysisRouter(t)

	resp := doRequest(router, http.MethodGet, "/api/v1/frameworks", "alice", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	var frameworks struct {
		Frameworks []struct {
			ID       string   `json:"id"`
			Sections []string `json:"sections"`
		} `json:"frameworks"`
	}
	decodeBody(t, resp, &frameworks)
	if len(frameworks.Frameworks) != 8 {
		t.Fatalf("expected 8 frameworks, got %d", len(frameworks.Frameworks))
	}

	resp = doRequest(router, http.MethodGet, "/api/v1/providers", "alice", nil)
	var providers struct {
		Providers []string `json:"providers"`
		Default   []string `json:"default"`
	}
	decodeBody(t, resp, &providers)
	if len(providers.Providers) != 2 || providers.Providers[0] != "deepseek" || providers.Providers[1] != "gemini" {
		t.Fatalf("unexpected providers: %+v", providers)
	}
}

func TestPollLimitReturns429(t *testing.T) {
	router, handler := setupAnalysisRouter(t)
	handler.PollLimit = middleware.RateLimit(middleware.RateLimitConfig{
		Rules:        map[string]middleware.RateLimitRule{"POLL": {Rate: 0.001, Burst: 1}},
		DefaultGroup: "POLL",
		KeyFor:       func(c *gin.Context) string { return c.Param("id") },
	})
	// Routes read the handler's limiters at registration time.
	router = gin.New()
	router.Use(middleware.RequestID(), middleware.Auth("dev", nil))
	handler.RegisterRoutes(router.Group("/api/v1"))

	id := submit(t, router, "alice", map[string]any{"business_input": "Kayak rentals"})
	handler.Svc.Wait()

	if resp := doRequest(router, http.MethodGet, "/api/v1/analyses/"+id, "alice", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected first poll to pass, got %d", resp.Code)
	}
	resp := doRequest(router, http.MethodGet, "/api/v1/analyses/"+id, "alice", nil)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", resp.Code)
	}
	if resp.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
	if other := doRequest(router, http.MethodGet, "/api/v1/analyses/"+id, "bob", nil); other.Code != http.StatusNotFound {
		t.Fatalf("expected separate bucket for another user, got %d", other.Code)
	}
}
