// Package testutil provides testing utilities for the catalog service.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock upstream endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockManga is an upstream catalog item as served by MockUpstream.
type MockManga struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	AltTitles   []string `json:"altTitles,omitempty"`
	Year        int      `json:"year,omitempty"`
	Type        string   `json:"type,omitempty"`
	Demographic string   `json:"demographic,omitempty"`
	Language    string   `json:"language,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// MockUpstream is a configurable mock catalog provider for testing. By
// default it serves the upstream catalog protocol over the items added with
// AddManga.
type MockUpstream struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	items    []MockManga
	trending map[int][]MockManga

	// Tracking
	RequestCount      int
	PathCounts        map[string]int
	LastRequestHeader http.Header
	LastBodies        map[string]string
}

// NewMockUpstream creates a new mock upstream server.
func NewMockUpstream() *MockUpstream {
	mock := &MockUpstream{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		trending:   make(map[int][]MockManga),
		PathCounts: make(map[string]int),
		LastBodies: make(map[string]string),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		mock.mu.Lock()
		mock.RequestCount++
		mock.PathCounts[r.URL.Path]++
		mock.LastRequestHeader = r.Header.Clone()
		if len(body) > 0 {
			mock.LastBodies[r.URL.Path] = string(body)
		}
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		// Default handler
		mock.defaultHandler(w, r, body)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockUpstream) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockUpstream) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockUpstream) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PathCounts = make(map[string]int)
	m.LastRequestHeader = nil
	m.LastBodies = make(map[string]string)
}

// AddManga adds items to the served catalog.
func (m *MockUpstream) AddManga(items ...MockManga) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, items...)
}

// SetTrending sets the items served by /trending for a days window.
func (m *MockUpstream) SetTrending(days int, items ...MockManga) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trending[days] = items
}

// SetHandler sets a custom handler for a specific path.
func (m *MockUpstream) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockUpstream) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		// Add delay if specified
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		// Set headers
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		// Write status and body
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockUpstream) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetPathCount returns the number of requests made to one path.
func (m *MockUpstream) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PathCounts[path]
}

// GetLastBody returns the last request body sent to a path.
func (m *MockUpstream) GetLastBody(path string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastBodies[path]
}

// listRequest is the union of the search and browse request bodies.
type listRequest struct {
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	Types          []string `json:"types"`
	Genres         []string `json:"genres"`
	ExcludedGenres []string `json:"excludedGenres"`
}

// defaultHandler serves the upstream catalog protocol.
func (m *MockUpstream) defaultHandler(w http.ResponseWriter, r *http.Request, body []byte) {
	m.mu.RLock()
	items := slices.Clone(m.items)
	trending := m.trending
	m.mu.RUnlock()

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	excluded := q["exclude"]

	switch {
	case strings.HasPrefix(r.URL.Path, "/manga/") && r.Method == http.MethodGet:
		id := strings.TrimPrefix(r.URL.Path, "/manga/")
		for _, item := range items {
			if item.ID == id {
				writeJSON(w, http.StatusOK, map[string]any{"data": item})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})

	case r.URL.Path == "/search" && r.Method == http.MethodPost:
		var req listRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
		needle := strings.ToLower(req.Query)
		writeList(w, filterItems(items, req.ExcludedGenres, func(item MockManga) bool {
			if strings.Contains(strings.ToLower(item.Title), needle) {
				return true
			}
			for _, alt := range item.AltTitles {
				if strings.Contains(strings.ToLower(alt), needle) {
					return true
				}
			}
			return false
		}), req.Limit)

	case r.URL.Path == "/browse" && r.Method == http.MethodPost:
		var req listRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad request"})
			return
		}
		writeList(w, filterItems(items, req.ExcludedGenres, func(item MockManga) bool {
			if len(req.Types) > 0 && !slices.Contains(req.Types, item.Type) {
				return false
			}
			for _, g := range req.Genres {
				if !slices.Contains(item.Genres, g) {
					return false
				}
			}
			return true
		}), req.Limit)

	case r.URL.Path == "/recent" || r.URL.Path == "/new":
		writeList(w, filterItems(items, excluded, nil), limit)

	case r.URL.Path == "/top":
		demographic := q.Get("demographic")
		writeList(w, filterItems(items, excluded, func(item MockManga) bool {
			return strings.EqualFold(item.Demographic, demographic)
		}), limit)

	case r.URL.Path == "/trending":
		days, _ := strconv.Atoi(q.Get("days"))
		lang := q.Get("lang")
		writeList(w, filterItems(trending[days], excluded, func(item MockManga) bool {
			return item.Language == "" || strings.EqualFold(item.Language, lang)
		}), limit)

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	}
}

func filterItems(items []MockManga, excluded []string, keep func(MockManga) bool) []MockManga {
	out := make([]MockManga, 0, len(items))
	for _, item := range items {
		if keep != nil && !keep(item) {
			continue
		}
		if slices.ContainsFunc(item.Genres, func(g string) bool { return slices.Contains(excluded, g) }) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func writeList(w http.ResponseWriter, items []MockManga, limit int) {
	total := len(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": items, "total": total})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}
