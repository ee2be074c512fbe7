package audiolink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// invidiousSearchPath is the search endpoint below an Invidious base URL.
	invidiousSearchPath = "/api/v1/search"
	// DefaultSearchLimit caps the number of returned search results.
	DefaultSearchLimit = 15
	// preferredThumbnail is the thumbnail quality returned with search results.
	preferredThumbnail = "medium"
)

var (
	// ErrNoSearchBackend is returned when no family can serve searches.
	ErrNoSearchBackend = errors.New("no search-capable provider family configured")
	// ErrEmptyQuery is returned for blank search queries.
	ErrEmptyQuery = errors.New("empty search query")
)

// SearchResult is one video found by free-text search.
type SearchResult struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Duration  string `json:"duration"`
	Author    string `json:"author"`
	Thumbnail string `json:"thumbnail"`
}

type invidiousSearchItem struct {
	Type            string               `json:"type"`
	VideoID         string               `json:"videoId"`
	Title           string               `json:"title"`
	Author          string               `json:"author"`
	LengthSeconds   flexNumber           `json:"lengthSeconds"`
	VideoThumbnails []invidiousThumbnail `json:"videoThumbnails"`
}

type invidiousThumbnail struct {
	Quality string `json:"quality"`
	URL     string `json:"url"`
}

// Searcher runs free-text searches against the Invidious families of a
// registry, trying their mirrors in rotation order.
type Searcher struct {
	registry *Registry
	fetcher  Fetcher
	limit    int
	timeout  time.Duration
	logger   *zap.Logger
}

// NewSearcher creates a searcher. Non-positive limit and timeout take defaults.
func NewSearcher(registry *Registry, fetcher Fetcher, limit int, timeout time.Duration, logger *zap.Logger) *Searcher {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	return &Searcher{
		registry: registry,
		fetcher:  fetcher,
		limit:    limit,
		timeout:  timeout,
		logger:   logger,
	}
}

// Available reports whether any configured family can serve searches.
func (s *Searcher) Available() bool {
	for _, f := range s.registry.Families() {
		if f.Kind == KindInvidious {
			return true
		}
	}
	return false
}

// Search returns up to the configured number of videos matching query.
func (s *Searcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !s.Available() {
		return nil, ErrNoSearchBackend
	}

	var lastErr error
	for _, f := range s.registry.Families() {
		if f.Kind != KindInvidious {
			continue
		}
		mirrors, err := s.registry.Rotation(f.Name)
		if err != nil {
			return nil, err
		}
		for _, mirror := range mirrors {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			results, err := s.searchMirror(ctx, f.Name, mirror, query)
			if err == nil {
				return results, nil
			}
			lastErr = err
			s.logger.Warn("Search attempt failed",
				zap.String("family", f.Name),
				zap.String("mirror", mirror),
				zap.Error(err))
		}
	}

	return nil, fmt.Errorf("search failed on every mirror: %w", lastErr)
}

func (s *Searcher) searchMirror(ctx context.Context, family, mirror, query string) ([]SearchResult, error) {
	target := mirror + invidiousSearchPath + "?type=video&q=" + url.QueryEscape(query)
	body, err := s.fetcher.Fetch(ctx, target, s.timeout)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ParseError{Kind: UnexpectedShape, Family: family, Err: errors.New("search body is not a JSON array")}
	}
	var items []invidiousSearchItem
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &ParseError{Kind: UnexpectedShape, Family: family, Err: err}
	}

	results := make([]SearchResult, 0, min(len(items), s.limit))
	for _, item := range items {
		if len(results) >= s.limit {
			break
		}
		if item.VideoID == "" || (item.Type != "" && item.Type != "video") {
			continue
		}
		results = append(results, SearchResult{
			ID:        item.VideoID,
			Title:     item.Title,
			Duration:  FormatTimestamp(int(item.LengthSeconds)),
			Author:    item.Author,
			Thumbnail: pickThumbnail(item.VideoThumbnails, mirror),
		})
	}

	return results, nil
}

func pickThumbnail(thumbs []invidiousThumbnail, mirror string) string {
	if len(thumbs) == 0 {
		return ""
	}
	chosen := thumbs[0].URL
	for _, t := range thumbs {
		if t.Quality == preferredThumbnail {
			chosen = t.URL
			break
		}
	}
	if strings.HasPrefix(chosen, "/") {
		chosen = mirror + chosen
	}
	return chosen
}

// FormatTimestamp renders seconds as m:ss or h:mm:ss.
func FormatTimestamp(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
