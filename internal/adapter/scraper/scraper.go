package scraper

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Candidate is one CSS selector to try for a property. Lower priority wins;
// candidates are attempted in ascending priority order and the first
// non-empty value stops the search.
type Candidate struct {
	Selector string
	// Attr names the attribute holding the value; empty means text content.
	Attr     string
	Priority int
}

// Scraper fetches remote pages and extracts metadata by CSS selector.
type Scraper struct {
	httpClient *http.Client
	timeout    time.Duration
}

// New constructs a scraper with a bounded per-fetch timeout.
func New(client *http.Client, timeout time.Duration) *Scraper {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Scraper{httpClient: client, timeout: timeout}
}

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// FetchDocument loads and parses the page. The request is cancelled for real
// when the timeout fires, not just abandoned.
func (s *Scraper) FetchDocument(ctx context.Context, pageURL string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch page: status=%d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Extract tries the candidates in ascending priority order and returns the
// first non-empty value found, or "".
func (d *Document) Extract(candidates []Candidate) string {
	ordered := make([]Candidate, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, candidate := range ordered {
		selection := d.doc.Find(candidate.Selector).First()
		if selection.Length() == 0 {
			continue
		}
		var value string
		if candidate.Attr == "" {
			value = selection.Text()
		} else {
			value, _ = selection.Attr(candidate.Attr)
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
