package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"litminer/internal/middleware"
	"litminer/internal/repo"
	"litminer/internal/services/biomarker"
	"litminer/internal/services/extract"
	"litminer/internal/services/funnel"
	"litminer/internal/services/llm"
	"litminer/internal/services/pubmed"
	"litminer/internal/services/research"
)

type stubNarrower funnel.EvidenceSet

func (n stubNarrower) Narrow(ctx context.Context, query string) (funnel.EvidenceSet, error) {
	return funnel.EvidenceSet(n), nil
}

type stubSource struct{}

func (stubSource) SearchIDs(ctx context.Context, query string, maxResults int) []string { return nil }
func (stubSource) FetchSummaries(ctx context.Context, ids []string) map[string]pubmed.Summary {
	return nil
}
func (stubSource) FetchAbstract(ctx context.Context, id string) string {
	return "Title " + id + "\nAbstract " + id
}
func (stubSource) FetchArticles(ctx context.Context, ids []string) []pubmed.ArticleRecord { return nil }

type brokenStore struct{ *repo.MemoryRepository }

func (brokenStore) ReplaceAll(ctx context.Context, snap repo.Snapshot) error {
	return errors.New("connection reset")
}

func (brokenStore) Ping(ctx context.Context) error { return errors.New("connection refused") }

// gateway answers every prompt by the first matching marker.
var gateway = llm.GatewayFunc(func(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "Extract biomedical entities"):
		return `[{"name": "EGFR", "type": "gene", "mentions": 5, "relations": [{"subject": "EGFR", "predicate": "drives", "object": "NSCLC"}]}, {"name": "NSCLC", "type": "disease"}]`, nil
	case strings.Contains(prompt, "relevant drugs"):
		return `[{"name": "Osimertinib", "type": "TKI", "mechanism": "EGFR inhibition", "efficacy": "high", "approvalStatus": "approved", "url": "https://example.org"}]`, nil
	case strings.Contains(prompt, "Analyze the following biomarkers"):
		return `{"summary": "fine", "risk_level": "low", "lifestyle_recommendations": ["sleep"]}`, nil
	case strings.Contains(prompt, "question and answer"):
		return `[{"question": "q", "answer": "a"}]`, nil
	}
	return "nothing useful", nil
})

var evidence = stubNarrower{
	{ID: "111", Title: "EGFR in NSCLC", Journal: "J Onc", Abstract: "EGFR drives NSCLC."},
}

func newServer(t *testing.T, store repo.Repository, set funnel.EvidenceSet) *httptest.Server {
	t.Helper()
	svc := research.NewService(stubNarrower(set), stubSource{}, extract.NewPipeline(gateway, nil), gateway, store)
	router := NewRouter(RouterOptions{
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimitConfig{RequestsPerMinute: 1000, BurstSize: 1000}, nil),
	})
	router.RegisterHealthRoutes(store)
	router.RegisterMetricsRoutes()
	router.RegisterResearchRoutes(NewResearchHandler(svc, biomarker.NewAnalyzer(gateway), store))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (int, map[string]any, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	var obj map[string]any
	_ = json.Unmarshal(raw, &obj)
	return resp.StatusCode, obj, raw
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestSearchThenList(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), funnel.EvidenceSet(evidence))

	status, body, _ := do(t, srv, http.MethodPost, "/search", `{"query": "EGFR lung cancer"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["run_id"])

	status, _, raw := do(t, srv, http.MethodGet, "/articles", "")
	require.Equal(t, http.StatusOK, status)
	var articles []repo.Article
	require.NoError(t, json.Unmarshal(raw, &articles))
	require.Len(t, articles, 1)
	assert.Equal(t, "https://pubmed.ncbi.nlm.nih.gov/111/", articles[0].URL)

	_, _, raw = do(t, srv, http.MethodGet, "/entities", "")
	assert.JSONEq(t, `[
		{"name": "EGFR", "type": "gene", "mentions": 5, "relations": [{"subject": "EGFR", "predicate": "drives", "object": "NSCLC", "confidence": 0.5}]},
		{"name": "NSCLC", "type": "disease", "mentions": 1, "relations": []}
	]`, string(raw))

	_, _, raw = do(t, srv, http.MethodGet, "/drugs", "")
	assert.Contains(t, string(raw), "Osimertinib")

	_, _, raw = do(t, srv, http.MethodGet, "/statistics", "")
	assert.JSONEq(t, `[]`, string(raw))

	status, _, raw = do(t, srv, http.MethodGet, "/getqna?query=EGFR", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"question": "q", "answer": "a"}]`, string(raw))

	status, _, raw = do(t, srv, http.MethodGet, "/drugs?query=EGFR", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(raw), "Osimertinib")

	status, _, raw = do(t, srv, http.MethodGet, "/biomarkers?query=EGFR", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[]`, string(raw))

	status, _, raw = do(t, srv, http.MethodGet, "/summary?query=EGFR", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"overview": "", "keyFindings": "", "clinicalImplications": "", "researchGaps": "", "conclusion": ""}`, string(raw))
}

func TestSearchNoResults(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)
	status, body, _ := do(t, srv, http.MethodPost, "/search", `{"query": "zzz"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_results", body["status"])
}

func TestSearchValidation(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)

	status, body, _ := do(t, srv, http.MethodPost, "/search", `{"query": "   "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeValidation, errorCode(body))

	status, body, _ = do(t, srv, http.MethodPost, "/search", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeBadRequest, errorCode(body))
}

func TestSearchPersistenceFailure(t *testing.T) {
	srv := newServer(t, brokenStore{repo.NewMemoryRepository()}, funnel.EvidenceSet(evidence))
	status, body, _ := do(t, srv, http.MethodPost, "/search", `{"query": "EGFR"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, ErrCodeInternal, errorCode(body))
}

func TestAdhocErrors(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)

	status, body, _ := do(t, srv, http.MethodGet, "/summary", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeValidation, errorCode(body))

	for _, path := range []string{"/summary?query=x", "/key_findings?query=x", "/key_entities?query=x", "/co-biomarkers?query=x"} {
		status, body, _ = do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, status, path)
		assert.Equal(t, ErrCodeNotFound, errorCode(body), path)
	}

	_, _, raw := do(t, srv, http.MethodGet, "/co-biomarkers", "")
	assert.JSONEq(t, `[]`, string(raw))
}

func TestAnalyzeBiomarkers(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)

	status, body, _ := do(t, srv, http.MethodPost, "/biomarkers",
		`[{"id": "ldl", "name": "LDL", "value": 150, "unit": "mg/dL", "normal_range": {"min": 0, "max": 100}}]`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "low", body["risk_level"])
	markers, _ := body["abnormal_markers"].([]any)
	assert.Len(t, markers, 1)

	status, body, _ = do(t, srv, http.MethodPost, "/biomarkers", `[{"value": 1}]`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, ErrCodeValidation, errorCode(body))
}

func TestProcessArticle(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)

	status, body, _ := do(t, srv, http.MethodGet, "/process-article?url=https://pubmed.ncbi.nlm.nih.gov/42/", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "42", body["pmid"])
	assert.Equal(t, "Title 42", body["title"])

	status, _, _ = do(t, srv, http.MethodGet, "/process-article", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndReady(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)
	status, body, _ := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, _, _ = do(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)

	broken := newServer(t, brokenStore{repo.NewMemoryRepository()}, nil)
	status, body, _ = do(t, broken, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, ErrCodeUpstream, errorCode(body))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, repo.NewMemoryRepository(), nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
