package audiolink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// commonUserAgent is sent with every outbound request.
	commonUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// maxBodySize caps provider responses; video metadata documents are well below it.
	maxBodySize = 8 << 20
	// maxHTTPRedirects is the maximum number of HTTP redirects to follow.
	maxHTTPRedirects = 3
	// relayURLPlaceholder is replaced with the query-escaped target URL.
	relayURLPlaceholder = "{url}"
	// relayRawURLPlaceholder is replaced with the target URL as-is.
	relayRawURLPlaceholder = "{rawurl}"
)

// ErrTooManyRedirects is returned when too many redirects are encountered.
var ErrTooManyRedirects = errors.New("too many redirects")

// Fetcher performs one logical GET and returns the response body. The relay
// layer is just another Fetcher, so callers never branch on transport.
type Fetcher interface {
	Fetch(ctx context.Context, target string, timeout time.Duration) ([]byte, error)
}

// newHTTPClient creates an HTTP client with redirect validation. Timeouts are
// applied per call through the request context.
func newHTTPClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxHTTPRedirects {
				return ErrTooManyRedirects
			}
			return nil
		},
	}
}

// HTTPFetcher fetches targets directly.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a direct fetcher. A nil client gets a default one.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = newHTTPClient()
	}
	return &HTTPFetcher{client: client}
}

// Fetch issues a single GET bounded by timeout.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, &TransportError{Kind: ConnectFailed, URL: target, Err: err}
	}
	req.Header.Set("User-Agent", commonUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &TransportError{Kind: BadStatus, URL: target, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transportError(ctx, target, fmt.Errorf("failed to read response body: %w", err))
	}

	return body, nil
}

func transportError(ctx context.Context, target string, err error) error {
	kind := ConnectFailed
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		kind = Timeout
	}
	return &TransportError{Kind: kind, URL: target, Err: err}
}

// Relay is a third-party pass-through endpoint. Template must contain either
// {url} (the target is query-escaped, e.g. "https://relay.example/raw?url={url}")
// or {rawurl} (the target is appended verbatim, e.g. "https://relay.example/fetch/{rawurl}").
type Relay struct {
	Template string
}

// ParseRelays validates relay templates.
func ParseRelays(templates []string) ([]Relay, error) {
	relays := make([]Relay, 0, len(templates))
	for _, t := range templates {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if !strings.Contains(t, relayURLPlaceholder) && !strings.Contains(t, relayRawURLPlaceholder) {
			return nil, fmt.Errorf("relay %q must contain %s or %s", t, relayURLPlaceholder, relayRawURLPlaceholder)
		}
		sample := strings.NewReplacer(relayURLPlaceholder, "x", relayRawURLPlaceholder, "x").Replace(t)
		u, err := url.Parse(sample)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("relay %q is not an absolute http(s) URL", t)
		}
		relays = append(relays, Relay{Template: t})
	}
	return relays, nil
}

// Wrap returns the relay URL that fetches target.
func (r Relay) Wrap(target string) string {
	if strings.Contains(r.Template, relayURLPlaceholder) {
		return strings.ReplaceAll(r.Template, relayURLPlaceholder, url.QueryEscape(target))
	}
	return strings.ReplaceAll(r.Template, relayRawURLPlaceholder, target)
}

// RelayFetcher tries the direct request first and, only when it fails, each
// relay in rotation order until one succeeds.
type RelayFetcher struct {
	direct Fetcher
	cursor *rotator
	logger *zap.Logger
}

// NewRelayFetcher wraps direct with the given relays.
func NewRelayFetcher(direct Fetcher, relays []Relay, logger *zap.Logger) *RelayFetcher {
	rf := &RelayFetcher{
		direct: direct,
		logger: logger,
	}
	if len(relays) > 0 {
		templates := make([]string, len(relays))
		for i, r := range relays {
			templates[i] = r.Template
		}
		rf.cursor = newRotator(templates)
	}
	return rf
}

// Fetch implements Fetcher. Each relay attempt gets its own timeout.
func (f *RelayFetcher) Fetch(ctx context.Context, target string, timeout time.Duration) ([]byte, error) {
	body, err := f.direct.Fetch(ctx, target, timeout)
	if err == nil {
		return body, nil
	}
	if ctx.Err() != nil || f.cursor == nil {
		return nil, err
	}

	f.logger.Debug("Direct fetch failed, trying relays",
		zap.String("target", target),
		zap.Error(err))

	lastErr := err
	tried := 0
	for _, template := range f.cursor.rotation() {
		relay := Relay{Template: template}
		tried++

		body, err := f.direct.Fetch(ctx, relay.Wrap(target), timeout)
		if err == nil {
			markRelayed(ctx)
			f.logger.Debug("Relay fetch succeeded",
				zap.String("target", target),
				zap.String("relay", template))
			return body, nil
		}

		lastErr = err
		f.logger.Debug("Relay fetch failed",
			zap.String("target", target),
			zap.String("relay", template),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}

	return nil, &AllRelaysFailedError{Target: target, Tried: tried, Last: lastErr}
}

type relayTraceKey struct{}

// relayTrace records whether a relay answered any fetch made with its context.
type relayTrace struct {
	used atomic.Bool
}

func withRelayTrace(ctx context.Context) (context.Context, *relayTrace) {
	trace := &relayTrace{}
	return context.WithValue(ctx, relayTraceKey{}, trace), trace
}

func markRelayed(ctx context.Context) {
	if trace, ok := ctx.Value(relayTraceKey{}).(*relayTrace); ok {
		trace.used.Store(true)
	}
}
