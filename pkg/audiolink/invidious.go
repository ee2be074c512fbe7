package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// invidiousVideoPath is the video metadata endpoint below an instance base URL.
const invidiousVideoPath = "/api/v1/videos/"

// InvidiousVideoResponse is the subset of an Invidious video document we read.
type InvidiousVideoResponse struct {
	Title           string            `json:"title"`
	Author          string            `json:"author"`
	LengthSeconds   flexNumber        `json:"lengthSeconds"`
	AdaptiveFormats []InvidiousFormat `json:"adaptiveFormats"`
	Error           string            `json:"error"`
}

// InvidiousFormat is one adaptive stream. Bitrate is in bits per second and
// usually encoded as a string.
type InvidiousFormat struct {
	URL          string     `json:"url"`
	Type         string     `json:"type"`
	Bitrate      flexNumber `json:"bitrate"`
	AudioQuality string     `json:"audioQuality"`
}

// InvidiousAdapter reads formats from Invidious instances.
type InvidiousAdapter struct {
	family string
}

// Kind implements Adapter.
func (a *InvidiousAdapter) Kind() AdapterKind {
	return KindInvidious
}

// FetchCandidates implements Adapter.
func (a *InvidiousAdapter) FetchCandidates(
	ctx context.Context,
	fetcher Fetcher,
	id, baseURL string,
	timeout time.Duration,
) (*Extraction, error) {
	body, err := fetcher.Fetch(ctx, baseURL+invidiousVideoPath+url.PathEscape(id), timeout)
	if err != nil {
		return nil, err
	}

	var resp InvidiousVideoResponse
	if err := decodeStrict(a.family, body, &resp); err != nil {
		return nil, err
	}

	return a.parse(&resp, baseURL)
}

func (a *InvidiousAdapter) parse(resp *InvidiousVideoResponse, mirror string) (*Extraction, error) {
	if resp.Error != "" {
		return nil, fmt.Errorf("%s at %s reported %q: %w", a.family, mirror, resp.Error, ErrEmptyResult)
	}
	if resp.AdaptiveFormats == nil {
		return nil, &ParseError{Kind: UnexpectedShape, Family: a.family, Err: errors.New("missing adaptiveFormats")}
	}

	var candidates []CandidateFormat
	for _, f := range resp.AdaptiveFormats {
		if f.URL == "" || !isAudioType(f.Type) {
			continue
		}
		candidates = append(candidates, CandidateFormat{
			URL:     f.URL,
			Type:    f.Type,
			Bitrate: f.Bitrate.bitsPerSecond(1),
			Quality: parseQuality(f.AudioQuality),
			Family:  a.family,
			Mirror:  mirror,
		})
	}

	if len(candidates) == 0 {
		return nil, emptyResult(a.family, mirror)
	}

	return &Extraction{
		Candidates:      candidates,
		Title:           resp.Title,
		Author:          resp.Author,
		DurationSeconds: int(resp.LengthSeconds),
	}, nil
}
