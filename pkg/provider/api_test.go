package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/manga-catalog/internal/testutil"
	"github.com/Sternrassler/manga-catalog/pkg/client"
)

func newTestAPI(t *testing.T, mock *testutil.MockUpstream) *API {
	t.Helper()

	cfg := client.DefaultConfig("MangaCatalogTest/1.0")
	cfg.PoliteDelay = 0
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	return NewAPI(c, Descriptor{
		ID:           Scraper,
		BaseURL:      mock.URL(),
		Enabled:      true,
		Capabilities: CapAll,
	})
}

func TestAPI_Get(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddManga(testutil.MockManga{ID: "berserk", Title: "Berserk", Year: 1989})

	api := newTestAPI(t, mock)

	m, err := api.Get(context.Background(), "berserk")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Title != "Berserk" || m.Provider != Scraper {
		t.Errorf("Get() = %+v", m)
	}

	_, err = api.Get(context.Background(), "missing")
	if !client.IsNotFound(err) {
		t.Errorf("Get(missing) error = %v, want upstream 404", err)
	}
}

func TestAPI_GetInvalidPayload(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.SetResponse("/manga/broken", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":{"id":"broken"}}`,
	})
	mock.SetResponse("/manga/empty", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
	})

	api := newTestAPI(t, mock)

	for _, id := range []string{"broken", "empty"} {
		if _, err := api.Get(context.Background(), id); !errors.Is(err, ErrInvalidPayload) {
			t.Errorf("Get(%s) error = %v, want ErrInvalidPayload", id, err)
		}
	}
}

func TestAPI_Search(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddManga(
		testutil.MockManga{ID: "1", Title: "Naruto", Genres: []string{"Action"}},
		testutil.MockManga{ID: "2", Title: "Boruto", AltTitles: []string{"Naruto Next Generations"}},
		testutil.MockManga{ID: "3", Title: "Naruto Gaiden", Genres: []string{"Gore"}},
	)

	api := newTestAPI(t, mock)

	page, err := api.Search(context.Background(), SearchRequest{
		Query:          "naruto",
		Limit:          10,
		ExcludedGenres: []string{"Gore"},
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(page.Items) != 2 || page.Total != 2 {
		t.Fatalf("Search() = %+v, want 2 items", page)
	}

	var sent SearchRequest
	if err := json.Unmarshal([]byte(mock.GetLastBody("/search")), &sent); err != nil {
		t.Fatalf("decode sent body: %v", err)
	}
	if sent.Query != "naruto" || sent.Limit != 10 || len(sent.ExcludedGenres) != 1 {
		t.Errorf("sent body = %+v", sent)
	}
}

func TestAPI_ListEndpoints(t *testing.T) {
	mock := testutil.NewMockUpstream()
	defer mock.Close()
	mock.AddManga(
		testutil.MockManga{ID: "1", Title: "Vagabond", Demographic: "seinen", Type: "manga"},
		testutil.MockManga{ID: "2", Title: "Fruits Basket", Demographic: "shoujo", Type: "manga", Genres: []string{"Romance"}},
		testutil.MockManga{ID: "3", Title: "Solo Leveling", Demographic: "seinen", Type: "manhwa", Genres: []string{"Ecchi"}},
	)
	mock.SetTrending(7, testutil.MockManga{ID: "3", Title: "Solo Leveling", Language: "ko"})

	api := newTestAPI(t, mock)
	ctx := context.Background()

	tests := []struct {
		name      string
		call      func() (Page, error)
		wantCount int
	}{
		{"recent", func() (Page, error) { return api.Recent(ctx, 2) }, 2},
		{"top seinen", func() (Page, error) { return api.Top(ctx, "seinen", 10, nil) }, 2},
		{"top seinen excluding ecchi", func() (Page, error) { return api.Top(ctx, "seinen", 10, []string{"Ecchi"}) }, 1},
		{"new", func() (Page, error) { return api.New(ctx, 10, []string{"Romance"}) }, 2},
		{"browse manhwa", func() (Page, error) {
			return api.Browse(ctx, BrowseRequest{Limit: 10, Types: []string{"manhwa"}})
		}, 1},
		{"trending ko", func() (Page, error) { return api.Trending(ctx, "ko", 7, 10, nil) }, 1},
		{"trending empty window", func() (Page, error) { return api.Trending(ctx, "ko", 30, 10, nil) }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := tt.call()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(page.Items) != tt.wantCount {
				t.Errorf("got %d items, want %d: %+v", len(page.Items), tt.wantCount, page.Items)
			}
		})
	}
}
