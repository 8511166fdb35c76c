package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/manga-catalog/internal/testutil"
	"github.com/Sternrassler/manga-catalog/pkg/catalog"
	"github.com/Sternrassler/manga-catalog/pkg/client"
	"github.com/Sternrassler/manga-catalog/pkg/logging"
	"github.com/Sternrassler/manga-catalog/pkg/provider"
	"github.com/Sternrassler/manga-catalog/pkg/resolver"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorInfo      `json:"error"`
}

type testServer struct {
	router   *gin.Engine
	catalog  *catalog.Service
	scraper  *testutil.MockUpstream
	mangadex *testutil.MockUpstream
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ts := &testServer{
		scraper:  testutil.NewMockUpstream(),
		mangadex: testutil.NewMockUpstream(),
	}
	t.Cleanup(ts.scraper.Close)
	t.Cleanup(ts.mangadex.Close)

	descs := provider.Defaults()
	descs[0].BaseURL = ts.scraper.URL()
	descs[1].BaseURL = ts.mangadex.URL()
	descs[1].Enabled = true
	descs[1].PoliteDelay = 0

	registry, err := provider.NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	cfg := client.DefaultConfig("MangaCatalogTest/1.0")
	cfg.PoliteDelay = 0
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	fetcher, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { fetcher.Close() })

	ts.catalog, err = catalog.New(registry, fetcher, catalog.DefaultConfig())
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	t.Cleanup(func() { ts.catalog.Close() })

	res, err := resolver.New(ts.catalog, registry, resolver.DefaultConfig())
	if err != nil {
		t.Fatalf("resolver.New() error = %v", err)
	}
	t.Cleanup(func() { res.Close() })

	ts.router = NewRouter(New(ts.catalog, res), zerolog.Nop())
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: invalid response body %q: %v", method, target, w.Body.String(), err)
	}
	return w, env
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d, success = %v", w.Code, env.Success)
	}

	var health healthResponse
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("Status = %q", health.Status)
	}
	for _, name := range []string{"entity", "result", "title"} {
		if _, ok := health.Caches[name]; !ok {
			t.Errorf("missing cache size %q", name)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestGetManga(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(testutil.MockManga{ID: "berserk", Title: "Berserk", Year: 1989})

	w, env := ts.do(t, http.MethodGet, "/api/v1/manga/scraper/berserk", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var m provider.Manga
	if err := json.Unmarshal(env.Data, &m); err != nil {
		t.Fatalf("decode manga: %v", err)
	}
	if m.Title != "Berserk" || m.Provider != provider.Scraper {
		t.Errorf("manga = %+v", m)
	}
	if w.Header().Get(logging.HeaderRequestID) == "" {
		t.Error("missing request ID header")
	}
}

func TestGetManga_NoCache(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(testutil.MockManga{ID: "berserk", Title: "Berserk"})

	for i := 0; i < 2; i++ {
		if w, _ := ts.do(t, http.MethodGet, "/api/v1/manga/scraper/berserk?nocache=true", ""); w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	if got := ts.scraper.GetPathCount("/manga/berserk"); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}

	if w, _ := ts.do(t, http.MethodGet, "/api/v1/manga/scraper/berserk", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := ts.scraper.GetPathCount("/manga/berserk"); got != 2 {
		t.Errorf("upstream calls after cached read = %d, want 2", got)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		setup      func(ts *testServer)
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown provider",
			method:     http.MethodGet,
			target:     "/api/v1/manga/comick/abc",
			wantStatus: http.StatusNotFound,
			wantCode:   "PROVIDER_UNAVAILABLE",
		},
		{
			name:       "missing title",
			method:     http.MethodGet,
			target:     "/api/v1/manga/scraper/missing",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unsupported operation",
			method:     http.MethodGet,
			target:     "/api/v1/providers/mangadex/browse",
			wantStatus: http.StatusBadRequest,
			wantCode:   "UNSUPPORTED",
		},
		{
			name:       "empty search",
			method:     http.MethodGet,
			target:     "/api/v1/search?q=+",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "bad limit",
			method:     http.MethodGet,
			target:     "/api/v1/search?q=berserk&limit=ten",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "bad filter",
			method:     http.MethodGet,
			target:     "/api/v1/providers/scraper/popular-new?mature=maybe",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown demographic",
			method:     http.MethodGet,
			target:     "/api/v1/providers/scraper/highlights/kodomo",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "unknown timeframe",
			method:     http.MethodGet,
			target:     "/api/v1/providers/scraper/trending/en?timeframe=decade",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "malformed resolve body",
			method:     http.MethodPost,
			target:     "/api/v1/resolve",
			body:       `{"items": "berserk"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:   "upstream failure",
			method: http.MethodGet,
			target: "/api/v1/providers/scraper/recent",
			setup: func(ts *testServer) {
				ts.scraper.SetResponse("/recent", testutil.NewServerErrorResponse())
			},
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			if tt.setup != nil {
				tt.setup(ts)
			}

			w, env := ts.do(t, tt.method, tt.target, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if env.Success || env.Error == nil {
				t.Fatalf("expected error envelope, got %s", w.Body.String())
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", env.Error.Code, tt.wantCode)
			}
			// Upstream addresses never leak to callers.
			for _, origin := range []string{ts.scraper.URL(), ts.mangadex.URL()} {
				if strings.Contains(w.Body.String(), origin) {
					t.Errorf("response leaks upstream URL: %s", w.Body.String())
				}
			}
		})
	}
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(
		testutil.MockManga{ID: "berserk", Title: "Berserk"},
		testutil.MockManga{ID: "vagabond", Title: "Vagabond"},
	)
	ts.mangadex.AddManga(testutil.MockManga{ID: "801513ba-a712-498c-8f57-cae55b38cc92", Title: "Berserk"})

	w, env := ts.do(t, http.MethodGet, "/api/v1/search?q=berserk&providers=scraper", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var items []provider.Manga
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode items: %v", err)
	}
	if len(items) != 1 || items[0].ID != "berserk" {
		t.Errorf("items = %+v", items)
	}
	if got := ts.mangadex.GetRequestCount(); got != 0 {
		t.Errorf("mangadex requests = %d, want 0", got)
	}
}

func TestBrowse(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(
		testutil.MockManga{ID: "a", Title: "A", Type: "manhwa", Genres: []string{"Action"}},
		testutil.MockManga{ID: "b", Title: "B", Type: "manga", Genres: []string{"Action"}},
		testutil.MockManga{ID: "c", Title: "C", Type: "manhwa", Genres: []string{"Romance"}},
	)

	w, env := ts.do(t, http.MethodGet, "/api/v1/providers/scraper/browse?types=manhwa&genres=Action&limit=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var page provider.Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "a" || page.Total != 1 {
		t.Errorf("page = %+v", page)
	}
}

func TestResolve(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(testutil.MockManga{ID: "berserk", Title: "Berserk"})

	body := `{"items": [
		{"title": "Berserk"},
		{"title": "Nothing Like It"},
		{"title": "Anything", "url": "` + ts.scraper.URL() + `/series/vinland-saga"}
	]}`
	w, env := ts.do(t, http.MethodPost, "/api/v1/resolve", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var results []resolver.Result
	if err := json.Unmarshal(env.Data, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].ResolvedID == nil || *results[0].ResolvedID != "berserk" {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].ResolvedID != nil {
		t.Errorf("results[1].ResolvedID = %q, want nil", *results[1].ResolvedID)
	}
	if results[2].ResolvedID == nil || *results[2].ResolvedID != "vinland-saga" {
		t.Errorf("results[2] = %+v", results[2])
	}
	for i, r := range results {
		if r.Index != i {
			t.Errorf("results[%d].Index = %d", i, r.Index)
		}
	}
}

func TestResolve_BatchTooLarge(t *testing.T) {
	ts := newTestServer(t)

	items := make([]string, resolver.DefaultConfig().MaxBatch+1)
	for i := range items {
		items[i] = `{"title": "Title"}`
	}
	w, env := ts.do(t, http.MethodPost, "/api/v1/resolve", `{"items": [`+strings.Join(items, ",")+`]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
		t.Errorf("error = %+v", env.Error)
	}
	if got := ts.scraper.GetRequestCount(); got != 0 {
		t.Errorf("upstream requests = %d, want 0", got)
	}
}

func TestClearCache(t *testing.T) {
	ts := newTestServer(t)
	ts.scraper.AddManga(testutil.MockManga{ID: "berserk", Title: "Berserk"})

	if w, _ := ts.do(t, http.MethodGet, "/api/v1/manga/scraper/berserk", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if entities, _ := ts.catalog.CacheSizes(); entities != 1 {
		t.Fatalf("entity cache size = %d, want 1", entities)
	}

	if w, _ := ts.do(t, http.MethodDelete, "/api/v1/cache", ""); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if entities, results := ts.catalog.CacheSizes(); entities != 0 || results != 0 {
		t.Errorf("cache sizes = %d/%d, want 0/0", entities, results)
	}
}

func TestSplitList(t *testing.T) {
	got := splitList([]string{"a, b", "", "c,,"})
	want := []string{"a", "b", "c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("splitList() = %v, want %v", got, want)
	}
}
