package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tastewell/harvester/internal/clock/system"
	"github.com/tastewell/harvester/internal/config"
	"github.com/tastewell/harvester/internal/fetch"
	"github.com/tastewell/harvester/internal/harvest"
	uuidgen "github.com/tastewell/harvester/internal/id/uuid"
	"github.com/tastewell/harvester/internal/ingest"
	"github.com/tastewell/harvester/internal/job"
	"github.com/tastewell/harvester/internal/parser"
	"github.com/tastewell/harvester/internal/policy"
	"github.com/tastewell/harvester/internal/storage/memory"
	"github.com/tastewell/harvester/internal/telemetry"
)

type stubFetcher struct {
	pages map[string]string
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*harvest.FetchResult, error) {
	f.calls++
	body, ok := f.pages[url]
	if !ok {
		return nil, &fetch.StatusError{URL: url, StatusCode: 404}
	}
	return &harvest.FetchResult{
		StatusCode:  200,
		Body:        []byte(body),
		ContentType: "text/html; charset=utf-8",
		FinalURL:    url,
	}, nil
}

const negroniPage = `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Recipe","name":"Negroni",
 "recipeIngredient":["1 oz gin","1 oz campari","1 oz sweet vermouth"],
 "recipeInstructions":[{"@type":"HowToStep","text":"Stir all ingredients with ice."},
                       {"@type":"HowToStep","text":"Strain into a rocks glass."}]}
</script></head>
<body><h1>Negroni</h1><p>Ingredients and directions below.</p></body></html>`

const indexPage = `<html><head><title>Cocktails</title></head><body>
<a href="/recipe/negroni/">Negroni</a>
<a href="/about">About us</a>
</body></html>`

type testEnv struct {
	server   *Server
	jobs     *memory.JobStore
	policies *memory.PolicyStore
	recipes  *memory.RecipeStore
	fetcher  *stubFetcher
}

func testPolicy() *policy.SourcePolicy {
	return &policy.SourcePolicy{
		ID:         "pol-cocktails",
		Name:       "Cocktails Test",
		Domain:     "cocktails.test",
		MetricType: policy.MetricPervasiveness,
		IsActive:   true,
		MaxPages:   10,
		MaxRecipes: 5,
		CrawlDepth: 2,
		ParserSettings: &policy.ParserSettings{
			UseSitemaps: policy.Bool(false),
		},
	}
}

func newTestEnv(t *testing.T, cfg config.Config, policies ...*policy.SourcePolicy) *testEnv {
	t.Helper()
	if len(policies) == 0 {
		policies = []*policy.SourcePolicy{testPolicy()}
	}
	if cfg.Harvest.MaxAttempts == 0 {
		cfg.Harvest = job.DefaultConfig()
	}
	cfg.Crawl.RequestsPerSecond = 10000
	jobs := memory.NewJobStore()
	policyStore := memory.NewPolicyStore(policies...)
	recipes := memory.NewRecipeStore()
	fetcher := &stubFetcher{pages: map[string]string{}}

	clk := system.New()
	ids := uuidgen.New()
	logger := zap.NewNop()
	ingester := ingest.NewService(recipes, ids, clk, logger)
	runner := job.NewRunner(job.Deps{
		Jobs:     jobs,
		Policies: policyStore,
		Ingester: ingester,
		Fetcher:  fetcher,
		Clock:    clk,
	}, cfg.Harvest, logger)
	agg := telemetry.New(jobs, policyStore, clk, logger)

	server := NewServer(Deps{
		Jobs:      jobs,
		Policies:  policyStore,
		Recipes:   recipes,
		Runner:    runner,
		Fetcher:   fetcher,
		Telemetry: agg,
		IDGen:     ids,
		Clock:     clk,
	}, cfg, logger)

	return &testEnv{
		server:   server,
		jobs:     jobs,
		policies: policyStore,
		recipes:  recipes,
		fetcher:  fetcher,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "ok", body["status"])
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()
	cfg := config.Config{}
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = "sekrit"
	env := newTestEnv(t, cfg)

	// Health stays open; only the admin surface demands the key.
	rec := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/admin/telemetry", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/telemetry", nil)
	req.Header.Set("X-API-Key", "sekrit")
	res := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
}

func TestCreateJobRejectsUnknownSource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/harvest/jobs", map[string]any{
		"source_url": "https://elsewhere.test/recipe/thing/",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[map[string]string](t, rec)
	require.Equal(t, "source not allowed", body["error"])
}

func TestCreateAndRunJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	env.fetcher.pages["https://cocktails.test/recipe/negroni/"] = negroniPage

	rec := env.do(t, http.MethodPost, "/v1/harvest/jobs", map[string]any{
		"source_url": "https://cocktails.test/recipe/negroni/",
		"run":        true,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[jobView](t, rec)
	require.Equal(t, "succeeded", view.Status)
	require.Equal(t, 1, view.AttemptCount)
	require.NotNil(t, view.RecipeID)
	require.Contains(t, view.Strategy, "jsonld")

	stored, err := env.recipes.GetBySourceURL(context.Background(), "https://cocktails.test/recipe/negroni/")
	require.NoError(t, err)
	require.Equal(t, "Negroni", stored.Name)

	rerun := env.do(t, http.MethodPost, "/v1/harvest/jobs/"+view.ID.String()+"/run", nil)
	require.Equal(t, http.StatusConflict, rerun.Code)
}

func TestCreateJobReturnsExistingActiveJob(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	first := env.do(t, http.MethodPost, "/v1/harvest/jobs", map[string]any{
		"source_url": "https://cocktails.test/recipe/negroni/",
	})
	require.Equal(t, http.StatusAccepted, first.Code)
	created := decode[jobView](t, first)

	second := env.do(t, http.MethodPost, "/v1/harvest/jobs", map[string]any{
		"source_url": "https://cocktails.test/recipe/negroni/",
	})
	require.Equal(t, http.StatusOK, second.Code)
	dup := decode[jobView](t, second)
	require.Equal(t, created.ID, dup.ID)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodGet, "/v1/harvest/jobs/"+uuid.NewString(), nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunJobExhaustedAttempts(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	id := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, env.jobs.CreateJob(context.Background(), &harvest.Job{
		ID:           id,
		PolicyID:     "pol-cocktails",
		Domain:       "cocktails.test",
		SourceURL:    "https://cocktails.test/recipe/negroni/",
		Status:       harvest.StatusFailed,
		AttemptCount: 3,
		MaxAttempts:  3,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))

	rec := env.do(t, http.MethodPost, "/v1/harvest/jobs/"+id.String()+"/run", nil)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	ctx := context.Background()
	now := time.Now().UTC()
	for i, status := range []harvest.JobStatus{harvest.StatusPending, harvest.StatusSucceeded, harvest.StatusFailed} {
		require.NoError(t, env.jobs.CreateJob(ctx, &harvest.Job{
			ID:           uuid.New(),
			PolicyID:     "pol-cocktails",
			Domain:       "cocktails.test",
			SourceURL:    "https://cocktails.test/recipe/" + string(rune('a'+i)) + "/",
			Status:       status,
			AttemptCount: 1,
			MaxAttempts:  3,
			CreatedAt:    now,
			UpdatedAt:    now,
		}))
	}

	rec := env.do(t, http.MethodGet, "/v1/harvest/jobs/?status=failed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Jobs  []jobView `json:"jobs"`
		Count int       `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	require.Equal(t, "failed", body.Jobs[0].Status)

	bad := env.do(t, http.MethodGet, "/v1/harvest/jobs/?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestListJobsRetryable(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := &harvest.Job{
		ID: uuid.New(), PolicyID: "pol-cocktails", Domain: "cocktails.test",
		SourceURL: "https://cocktails.test/recipe/due/", Status: harvest.StatusFailed,
		AttemptCount: 1, MaxAttempts: 3, NextRetryAt: &past, CreatedAt: now, UpdatedAt: now,
	}
	notDue := &harvest.Job{
		ID: uuid.New(), PolicyID: "pol-cocktails", Domain: "cocktails.test",
		SourceURL: "https://cocktails.test/recipe/later/", Status: harvest.StatusFailed,
		AttemptCount: 1, MaxAttempts: 3, NextRetryAt: &future, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, env.jobs.CreateJob(ctx, due))
	require.NoError(t, env.jobs.CreateJob(ctx, notDue))

	rec := env.do(t, http.MethodGet, "/v1/harvest/jobs/?retryable=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Jobs []jobView `json:"jobs"`
	}](t, rec)
	require.Len(t, body.Jobs, 1)
	require.Equal(t, due.ID, body.Jobs[0].ID)
}

func TestListPoliciesActiveSorted(t *testing.T) {
	t.Parallel()
	inactive := testPolicy()
	inactive.ID = "pol-zzz"
	inactive.Name = "AAA Disabled"
	inactive.Domain = "disabled.test"
	inactive.IsActive = false
	second := testPolicy()
	second.ID = "pol-aperitivo"
	second.Name = "Aperitivo Hour"
	second.Domain = "aperitivo.test"
	env := newTestEnv(t, config.Config{}, testPolicy(), inactive, second)

	rec := env.do(t, http.MethodGet, "/v1/policies/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Policies []*policy.SourcePolicy `json:"policies"`
		Count    int                    `json:"count"`
	}](t, rec)
	require.Equal(t, 2, body.Count)
	require.Equal(t, "Aperitivo Hour", body.Policies[0].Name)
	require.Equal(t, "Cocktails Test", body.Policies[1].Name)
}

func TestAutoHarvestQueuesAndCaches(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	env.fetcher.pages["https://cocktails.test/"] = indexPage
	env.fetcher.pages["https://cocktails.test/recipe/negroni/"] = negroniPage

	rec := env.do(t, http.MethodPost, "/v1/harvest/auto", map[string]any{
		"source_url": "https://cocktails.test/",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[autoHarvestResponse](t, rec)
	require.Equal(t, "ok", body.Status)
	require.Equal(t, 1, body.ParsedCount)
	require.Len(t, body.QueuedJobIDs, 1)
	require.Contains(t, body.DiscoveredURLs, "https://cocktails.test/recipe/negroni/")

	jb, err := env.jobs.GetJob(context.Background(), body.QueuedJobIDs[0])
	require.NoError(t, err)
	require.Equal(t, harvest.StatusPending, jb.Status)
	require.Equal(t, "pol-cocktails", jb.PolicyID)
	require.Contains(t, jb.RawText, "Ingredients")
	require.Contains(t, jb.RawText, "- 1 oz gin")
	require.Contains(t, jb.RawText, "Instructions")
	require.NotNil(t, jb.Strategy)
	require.Equal(t, harvest.KindJSONLD, jb.Strategy.Kind)

	// The raw text must survive a re-parse with the extracted shape intact.
	reparsed := parser.ParseRawText(jb.RawText, "")
	require.Equal(t, "Negroni", reparsed.Name)
	require.Len(t, reparsed.Ingredients, 3)
	require.Equal(t, "gin", reparsed.Ingredients[0].Name)
	require.Len(t, reparsed.Instructions, 2)

	// A second call hits the crawl cache and skips the queued job.
	fetches := env.fetcher.calls
	again := env.do(t, http.MethodPost, "/v1/harvest/auto", map[string]any{
		"source_url": "https://cocktails.test/",
	})
	require.Equal(t, http.StatusOK, again.Code)
	cached := decode[autoHarvestResponse](t, again)
	require.Equal(t, env.fetcher.calls, fetches)
	require.Empty(t, cached.QueuedJobIDs)
	require.Equal(t, 1, cached.SkipReasons["existing_job_pending_or_running"])

	// A different parser_settings override crawls fresh instead of
	// reusing the cached result.
	overridden := env.do(t, http.MethodPost, "/v1/harvest/auto", map[string]any{
		"source_url":      "https://cocktails.test/",
		"parser_settings": map[string]any{"enable_jsonld": false},
	})
	require.Equal(t, http.StatusOK, overridden.Code)
	require.Greater(t, env.fetcher.calls, fetches)
}

func TestAutoHarvestRejectsUnknownSource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/harvest/auto", map[string]any{
		"source_url": "https://elsewhere.test/",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoHarvestSkipsExistingSource(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	env.fetcher.pages["https://cocktails.test/"] = indexPage
	env.fetcher.pages["https://cocktails.test/recipe/negroni/"] = negroniPage
	require.NoError(t, env.recipes.CreateRecipe(context.Background(), &harvest.RecipeRecord{
		ID:         uuid.New(),
		Name:       "Negroni",
		SourceURL:  "https://cocktails.test/recipe/negroni/",
		SourceURLs: []string{"https://cocktails.test/recipe/negroni/"},
	}))

	rec := env.do(t, http.MethodPost, "/v1/harvest/auto", map[string]any{
		"source_url": "https://cocktails.test/",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[autoHarvestResponse](t, rec)
	require.Empty(t, body.QueuedJobIDs)
	require.Equal(t, 1, body.SkipReasons["existing_source"])
}

func TestRecoverySuggestion(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/policies/pol-cocktails/recovery-suggestion", map[string]any{
		"parse_failure": "parse_failed:domain-selector-mismatch@low",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[recoverySuggestionResponse](t, rec)
	require.Equal(t, "pol-cocktails", body.PolicyID)
	require.Equal(t, "domain-selector-mismatch", body.ParseFailure)
	require.Equal(t, "https://cocktails.test/", body.SourceURL)
	require.NotEmpty(t, body.Actions)
	require.NotEmpty(t, body.ChangedKeys)
	require.NotEmpty(t, body.Patch)
	require.False(t, body.Applied)

	// The preview must not touch the stored policy.
	p, err := env.policies.GetPolicy(context.Background(), "pol-cocktails")
	require.NoError(t, err)
	require.Empty(t, p.ParserSettings.IngredientSelectors)
}

func TestRecoverySuggestionApply(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/policies/pol-cocktails/recovery-suggestion?apply=true", map[string]any{
		"parse_failure": "low-confidence-parse",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[recoverySuggestionResponse](t, rec)
	require.True(t, body.Applied)
	require.Contains(t, body.ChangedKeys, "min_extraction_confidence")

	p, err := env.policies.GetPolicy(context.Background(), "pol-cocktails")
	require.NoError(t, err)
	require.NotNil(t, p.ParserSettings.MinExtractionConfidence)
	require.InDelta(t, 0.25, *p.ParserSettings.MinExtractionConfidence, 0.0001)
}

func TestRecoverySuggestionRejectsUnsupportedClass(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/policies/pol-cocktails/recovery-suggestion", map[string]any{
		"parse_failure": "empty-document",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoverySuggestionRejectsForeignHost(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/policies/pol-cocktails/recovery-suggestion", map[string]any{
		"parse_failure": "low-confidence-parse",
		"source_url":    "https://elsewhere.test/recipe/thing/",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTelemetryEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})
	now := time.Now().UTC()
	require.NoError(t, env.jobs.CreateJob(context.Background(), &harvest.Job{
		ID: uuid.New(), PolicyID: "pol-cocktails", Domain: "cocktails.test",
		SourceURL: "https://cocktails.test/recipe/negroni/", Status: harvest.StatusSucceeded,
		AttemptCount: 1, MaxAttempts: 3, CreatedAt: now, UpdatedAt: now,
	}))

	rec := env.do(t, http.MethodGet, "/v1/admin/telemetry", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[telemetry.Report](t, rec)
	require.Equal(t, 1, report.Global.TotalJobs)
	require.Len(t, report.Domains, 1)
	require.Equal(t, "cocktails.test", report.Domains[0].Domain)
}

func TestCalibrateEndpoint(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, config.Config{})

	rec := env.do(t, http.MethodPost, "/v1/admin/alerts/calibrate?min_jobs=5", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[telemetry.CalibrationResult](t, rec)
	require.False(t, result.Apply)
	require.Equal(t, 5, result.MinJobs)

	bad := env.do(t, http.MethodPost, "/v1/admin/alerts/calibrate?buffer_multiplier=0.5", nil)
	require.Equal(t, http.StatusBadRequest, bad.Code)
}
