package provider

import (
	"fmt"
	"strings"
)

// Manga is a validated catalog entity.
type Manga struct {
	ID          string   `json:"id"`
	Provider    ID       `json:"provider"`
	Title       string   `json:"title"`
	AltTitles   []string `json:"altTitles,omitempty"`
	Description string   `json:"description,omitempty"`
	Year        int      `json:"year,omitempty"`
	Status      string   `json:"status,omitempty"`
	Type        string   `json:"type,omitempty"`
	Demographic string   `json:"demographic,omitempty"`
	Language    string   `json:"language,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	CoverURL    string   `json:"coverUrl,omitempty"`
	URL         string   `json:"url,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
}

// Page is a validated list result.
type Page struct {
	Items []Manga `json:"items"`
	Total int     `json:"total"`
}

// rawManga is the upstream item shape before validation.
type rawManga struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	AltTitles   []string `json:"altTitles"`
	Description string   `json:"description"`
	Year        int      `json:"year"`
	Status      string   `json:"status"`
	Type        string   `json:"type"`
	Demographic string   `json:"demographic"`
	Language    string   `json:"language"`
	Genres      []string `json:"genres"`
	CoverURL    string   `json:"coverUrl"`
	URL         string   `json:"url"`
	Rating      float64  `json:"rating"`
}

// entityEnvelope wraps GET /manga/{id}.
type entityEnvelope struct {
	Data *rawManga `json:"data"`
}

// listEnvelope wraps every list-shaped response.
type listEnvelope struct {
	Data  []rawManga `json:"data"`
	Total *int       `json:"total"`
}

// validate converts a raw item into a Manga. Items without an id or title
// are rejected.
func (r rawManga) validate(id ID) (Manga, error) {
	mangaID := strings.TrimSpace(r.ID)
	title := strings.TrimSpace(r.Title)
	if mangaID == "" {
		return Manga{}, fmt.Errorf("%w: item without id", ErrInvalidPayload)
	}
	if title == "" {
		return Manga{}, fmt.Errorf("%w: item %s without title", ErrInvalidPayload, mangaID)
	}
	if r.Year < 0 {
		r.Year = 0
	}

	return Manga{
		ID:          mangaID,
		Provider:    id,
		Title:       title,
		AltTitles:   cleanStrings(r.AltTitles),
		Description: strings.TrimSpace(r.Description),
		Year:        r.Year,
		Status:      strings.TrimSpace(r.Status),
		Type:        strings.TrimSpace(r.Type),
		Demographic: strings.ToLower(strings.TrimSpace(r.Demographic)),
		Language:    strings.TrimSpace(r.Language),
		Genres:      cleanStrings(r.Genres),
		CoverURL:    strings.TrimSpace(r.CoverURL),
		URL:         strings.TrimSpace(r.URL),
		Rating:      r.Rating,
	}, nil
}

// page validates a list envelope, dropping invalid items. Total falls back
// to the number of valid items when upstream omits it.
func (e listEnvelope) page(id ID) (Page, int) {
	items := make([]Manga, 0, len(e.Data))
	dropped := 0
	for _, raw := range e.Data {
		m, err := raw.validate(id)
		if err != nil {
			dropped++
			continue
		}
		items = append(items, m)
	}

	total := len(items)
	if e.Total != nil && *e.Total >= total {
		total = *e.Total
	}
	return Page{Items: items, Total: total}, dropped
}

func cleanStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
