package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"go.uber.org/zap"
)

const searchBody = `[
	{"type": "video", "videoId": "aaaaaaaaaaa", "title": "First", "author": "One", "lengthSeconds": 213,
	 "videoThumbnails": [{"quality": "high", "url": "https://img.example/hq.jpg"}, {"quality": "medium", "url": "/vi/a/mq.jpg"}]},
	{"type": "channel", "author": "Some Channel"},
	{"type": "video", "videoId": "bbbbbbbbbbb", "title": "Second", "author": "Two", "lengthSeconds": "3725"},
	{"type": "video", "videoId": "", "title": "Broken"}
]`

func searchTarget(mirror, query string) string {
	return mirror + "/api/v1/search?type=video&q=" + url.QueryEscape(query)
}

func newTestSearcher(t *testing.T, families []Family, fetcher Fetcher, limit int) *Searcher {
	t.Helper()
	reg, err := NewRegistry(families, MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return NewSearcher(reg, fetcher, limit, 0, zap.NewNop())
}

func TestSearcher_Search(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]stubResponse{
		searchTarget("https://a1.example", "rick astley"): {body: searchBody},
	}}
	searcher := newTestSearcher(t, testFamilies(), fetcher, 0)

	results, err := searcher.Search(context.Background(), "  rick astley ")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2: %+v", len(results), results)
	}

	first := results[0]
	if first.ID != "aaaaaaaaaaa" || first.Title != "First" || first.Author != "One" {
		t.Errorf("first result = %+v", first)
	}
	if first.Duration != "3:33" {
		t.Errorf("first duration = %q, want 3:33", first.Duration)
	}
	if first.Thumbnail != "https://a1.example/vi/a/mq.jpg" {
		t.Errorf("first thumbnail = %q, want medium thumbnail on the mirror", first.Thumbnail)
	}
	if results[1].Duration != "1:02:05" {
		t.Errorf("second duration = %q, want 1:02:05", results[1].Duration)
	}
	if results[1].Thumbnail != "" {
		t.Errorf("second thumbnail = %q, want empty", results[1].Thumbnail)
	}
}

func TestSearcher_FallsBackAcrossMirrors(t *testing.T) {
	fetcher := &stubFetcher{responses: map[string]stubResponse{
		searchTarget("https://a1.example", "q"): {body: `{"error":"rate limited"}`},
		searchTarget("https://a3.example", "q"): {body: searchBody},
	}}
	searcher := newTestSearcher(t, testFamilies(), fetcher, 0)

	results, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Search() returned %d results, want 2", len(results))
	}
	if len(fetcher.requested) != 3 {
		t.Errorf("requested %v, want a1, a2 then a3", fetcher.requested)
	}
	for _, r := range fetcher.requested {
		if strings.HasPrefix(r, "https://b1.example") {
			t.Errorf("non-search family queried: %s", r)
		}
	}
}

func TestSearcher_ThroughRelay(t *testing.T) {
	target := searchTarget("https://a1.example", "q")
	relays, err := ParseRelays([]string{"https://relay.example/?u={url}"})
	if err != nil {
		t.Fatalf("ParseRelays() error = %v", err)
	}
	// Only the relayed URL answers; the mirror itself is unreachable.
	stub := &stubFetcher{responses: map[string]stubResponse{
		relays[0].Wrap(target): {body: searchBody},
	}}
	families := []Family{{Name: "A", Kind: KindInvidious, Mirrors: []string{"https://a1.example"}}}
	searcher := newTestSearcher(t, families, NewRelayFetcher(stub, relays, zap.NewNop()), 0)

	results, err := searcher.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Search() returned %d results, want 2", len(results))
	}
	if len(stub.requested) != 2 || stub.requested[0] != target {
		t.Errorf("requested %v, want direct then relay", stub.requested)
	}
}

func TestSearcher_Limit(t *testing.T) {
	var items []string
	for i := 0; i < 30; i++ {
		items = append(items, fmt.Sprintf(`{"type":"video","videoId":"id%09d","title":"t","lengthSeconds":1}`, i))
	}
	body := "[" + strings.Join(items, ",") + "]"

	fetcher := &stubFetcher{responses: map[string]stubResponse{
		searchTarget("https://a1.example", "many"): {body: body},
	}}

	results, err := newTestSearcher(t, testFamilies(), fetcher, 0).Search(context.Background(), "many")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != DefaultSearchLimit {
		t.Errorf("Search() returned %d results, want %d", len(results), DefaultSearchLimit)
	}
}

func TestSearcher_Errors(t *testing.T) {
	searcher := newTestSearcher(t, testFamilies(), &stubFetcher{}, 0)
	if _, err := searcher.Search(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("Search(blank) error = %v, want ErrEmptyQuery", err)
	}

	_, err := searcher.Search(context.Background(), "nothing")
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Errorf("Search() error = %v, want wrapped TransportError", err)
	}

	pipedOnly := newTestSearcher(t, []Family{
		{Name: "B", Kind: KindPiped, Mirrors: []string{"https://b1.example"}},
	}, &stubFetcher{}, 0)
	if pipedOnly.Available() {
		t.Error("Available() = true for a registry without search-capable families")
	}
	if _, err := pipedOnly.Search(context.Background(), "q"); !errors.Is(err, ErrNoSearchBackend) {
		t.Errorf("Search() error = %v, want ErrNoSearchBackend", err)
	}
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0:00"},
		{-3, "0:00"},
		{59, "0:59"},
		{213, "3:33"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
