package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// pipedStreamsPath is the streams endpoint below a Piped API base URL.
const pipedStreamsPath = "/streams/"

// PipedStreamsResponse is the subset of a Piped streams document we read.
type PipedStreamsResponse struct {
	Title        string        `json:"title"`
	Uploader     string        `json:"uploader"`
	Duration     flexNumber    `json:"duration"`
	AudioStreams []PipedStream `json:"audioStreams"`
	Error        string        `json:"error"`
}

// PipedStream is one audio stream. Bitrate is in bits per second.
type PipedStream struct {
	URL       string     `json:"url"`
	MimeType  string     `json:"mimeType"`
	Codec     string     `json:"codec"`
	Bitrate   flexNumber `json:"bitrate"`
	VideoOnly bool       `json:"videoOnly"`
}

// PipedAdapter reads formats from Piped API instances.
type PipedAdapter struct {
	family string
}

// Kind implements Adapter.
func (a *PipedAdapter) Kind() AdapterKind {
	return KindPiped
}

// FetchCandidates implements Adapter.
func (a *PipedAdapter) FetchCandidates(
	ctx context.Context,
	fetcher Fetcher,
	id, baseURL string,
	timeout time.Duration,
) (*Extraction, error) {
	body, err := fetcher.Fetch(ctx, baseURL+pipedStreamsPath+url.PathEscape(id), timeout)
	if err != nil {
		return nil, err
	}

	var resp PipedStreamsResponse
	if err := decodeStrict(a.family, body, &resp); err != nil {
		return nil, err
	}

	return a.parse(&resp, baseURL)
}

func (a *PipedAdapter) parse(resp *PipedStreamsResponse, mirror string) (*Extraction, error) {
	if resp.Error != "" {
		return nil, fmt.Errorf("%s at %s reported %q: %w", a.family, mirror, resp.Error, ErrEmptyResult)
	}
	if resp.AudioStreams == nil {
		return nil, &ParseError{Kind: UnexpectedShape, Family: a.family, Err: errors.New("missing audioStreams")}
	}

	var candidates []CandidateFormat
	for _, s := range resp.AudioStreams {
		if s.URL == "" || s.VideoOnly {
			continue
		}
		if s.MimeType != "" && !isAudioType(s.MimeType) {
			continue
		}
		candidates = append(candidates, CandidateFormat{
			URL:     s.URL,
			Type:    pipedType(s),
			Bitrate: s.Bitrate.bitsPerSecond(1),
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
		Author:          resp.Uploader,
		DurationSeconds: int(resp.Duration),
	}, nil
}

// pipedType rebuilds an Invidious-style type string from mimeType and codec.
func pipedType(s PipedStream) string {
	mime := s.MimeType
	if mime == "" {
		mime = "audio/unknown"
	}
	if s.Codec == "" {
		return mime
	}
	return fmt.Sprintf("%s; codecs=%q", mime, s.Codec)
}
