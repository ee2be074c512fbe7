package audiolink

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("User-Agent") == "" {
				t.Error("missing User-Agent header")
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(nil)

	body, err := fetcher.Fetch(context.Background(), server.URL+"/ok", time.Second)
	if err != nil {
		t.Fatalf("Fetch(/ok) error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Fetch(/ok) body = %q", body)
	}

	_, err = fetcher.Fetch(context.Background(), server.URL+"/fail", time.Second)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != BadStatus || transportErr.Status != http.StatusInternalServerError {
		t.Errorf("Fetch(/fail) error = %v, want BadStatus 500", err)
	}
	if classify(err) != OutcomeTransportError {
		t.Errorf("classify(500) = %s, want %s", classify(err), OutcomeTransportError)
	}

	_, err = fetcher.Fetch(context.Background(), server.URL+"/slow", 50*time.Millisecond)
	if !errors.As(err, &transportErr) || transportErr.Kind != Timeout {
		t.Errorf("Fetch(/slow) error = %v, want Timeout", err)
	}
	if classify(err) != OutcomeTimeout {
		t.Errorf("classify(slow) = %s, want %s", classify(err), OutcomeTimeout)
	}
}

func TestHTTPFetcher_ConnectFailed(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewHTTPFetcher(nil).Fetch(context.Background(), addr+"/x", time.Second)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != ConnectFailed {
		t.Errorf("Fetch() error = %v, want ConnectFailed", err)
	}
}

func TestHTTPFetcher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(nil).Fetch(ctx, "http://127.0.0.1:1/x", time.Second)
	if classify(err) != OutcomeCanceled {
		t.Errorf("classify() = %s, want %s (err %v)", classify(err), OutcomeCanceled, err)
	}
}

func TestParseRelays(t *testing.T) {
	relays, err := ParseRelays([]string{
		"https://relay.example/raw?url={url}",
		"  ",
		"https://proxy.example/fetch/{rawurl}",
	})
	if err != nil {
		t.Fatalf("ParseRelays() error = %v", err)
	}
	if len(relays) != 2 {
		t.Fatalf("expected 2 relays, got %d", len(relays))
	}

	bad := [][]string{
		{"https://relay.example/raw?url="},
		{"relay.example/{url}"},
		{"ftp://relay.example/{url}"},
	}
	for _, b := range bad {
		if _, err := ParseRelays(b); err == nil {
			t.Errorf("ParseRelays(%v) expected error", b)
		}
	}
}

func TestRelay_Wrap(t *testing.T) {
	target := "https://inv.example/api/v1/videos/abc?x=1"

	query := Relay{Template: "https://relay.example/raw?url={url}"}
	if got, want := query.Wrap(target), "https://relay.example/raw?url="+url.QueryEscape(target); got != want {
		t.Errorf("query Wrap() = %q, want %q", got, want)
	}

	path := Relay{Template: "https://proxy.example/fetch/{rawurl}"}
	if got, want := path.Wrap(target), "https://proxy.example/fetch/"+target; got != want {
		t.Errorf("path Wrap() = %q, want %q", got, want)
	}
}

func TestRelayFetcher_DirectFirst(t *testing.T) {
	var relayHits atomic.Int32
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		relayHits.Add(1)
		_, _ = w.Write([]byte("relayed"))
	}))
	defer relay.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	defer origin.Close()

	relays, _ := ParseRelays([]string{relay.URL + "/raw?url={url}"})
	fetcher := NewRelayFetcher(NewHTTPFetcher(nil), relays, zap.NewNop())

	body, err := fetcher.Fetch(context.Background(), origin.URL+"/v", time.Second)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "direct" {
		t.Errorf("Fetch() body = %q, want direct", body)
	}
	if relayHits.Load() != 0 {
		t.Errorf("relay used %d times although direct fetch succeeded", relayHits.Load())
	}
}

func TestRelayFetcher_FallsBackToRelays(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer origin.Close()

	var brokenHits atomic.Int32
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		brokenHits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	target := origin.URL + "/api/v1/videos/abc"
	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") != target {
			t.Errorf("relay received unexpected target: %s", r.URL.String())
		}
		_, _ = w.Write([]byte("relayed"))
	}))
	defer working.Close()

	relays, err := ParseRelays([]string{
		broken.URL + "/raw?url={url}",
		working.URL + "/raw?url={url}",
	})
	if err != nil {
		t.Fatalf("ParseRelays() error = %v", err)
	}
	fetcher := NewRelayFetcher(NewHTTPFetcher(nil), relays, zap.NewNop())

	body, err := fetcher.Fetch(context.Background(), target, time.Second)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(body) != "relayed" {
		t.Errorf("Fetch() body = %q, want relayed", body)
	}
	if brokenHits.Load() != 1 {
		t.Errorf("broken relay hit %d times, want 1", brokenHits.Load())
	}
}

func TestRelayFetcher_AllRelaysFailed(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	relays, _ := ParseRelays([]string{
		down.URL + "/a?url={url}",
		down.URL + "/b/{rawurl}",
	})
	fetcher := NewRelayFetcher(NewHTTPFetcher(nil), relays, zap.NewNop())

	_, err := fetcher.Fetch(context.Background(), down.URL+"/origin", time.Second)
	var allFailed *AllRelaysFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("Fetch() error = %v, want *AllRelaysFailedError", err)
	}
	if allFailed.Tried != 2 {
		t.Errorf("Tried = %d, want 2", allFailed.Tried)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Status != http.StatusServiceUnavailable {
		t.Errorf("last error not unwrapped: %v", err)
	}
}

func TestRelayFetcher_NoRelaysReturnsDirectError(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	fetcher := NewRelayFetcher(NewHTTPFetcher(nil), nil, zap.NewNop())
	_, err := fetcher.Fetch(context.Background(), down.URL, time.Second)

	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Kind != BadStatus {
		t.Errorf("Fetch() error = %v, want direct BadStatus error", err)
	}
}
