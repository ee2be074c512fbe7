package audiolink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// extractorInfoPath is the info endpoint below an extractor base URL.
	extractorInfoPath = "/api/info"
	// extractorWatchURL is the page URL the extractor is asked about.
	extractorWatchURL = "https://www.youtube.com/watch?v="
	// kbpsToBps converts the extractor's kbps bitrates.
	kbpsToBps = 1000
	// codecNone marks an absent audio or video track.
	codecNone = "none"
)

// ExtractorInfoResponse is the subset of a yt-dlp style info document we read.
type ExtractorInfoResponse struct {
	Title    string            `json:"title"`
	Uploader string            `json:"uploader"`
	Duration flexNumber        `json:"duration"`
	Formats  []ExtractorFormat `json:"formats"`
}

// ExtractorFormat is one format. ABR is the audio bitrate in kbps.
type ExtractorFormat struct {
	FormatID   string     `json:"format_id"`
	URL        string     `json:"url"`
	Ext        string     `json:"ext"`
	ACodec     string     `json:"acodec"`
	VCodec     string     `json:"vcodec"`
	ABR        flexNumber `json:"abr"`
	FormatNote string     `json:"format_note"`
}

// ExtractorAdapter reads formats from a hosted yt-dlp style extractor.
type ExtractorAdapter struct {
	family string
}

// Kind implements Adapter.
func (a *ExtractorAdapter) Kind() AdapterKind {
	return KindExtractor
}

// FetchCandidates implements Adapter.
func (a *ExtractorAdapter) FetchCandidates(
	ctx context.Context,
	fetcher Fetcher,
	id, baseURL string,
	timeout time.Duration,
) (*Extraction, error) {
	target := baseURL + extractorInfoPath + "?url=" + url.QueryEscape(extractorWatchURL+id)
	body, err := fetcher.Fetch(ctx, target, timeout)
	if err != nil {
		return nil, err
	}

	var resp ExtractorInfoResponse
	if err := decodeStrict(a.family, body, &resp); err != nil {
		return nil, err
	}

	return a.parse(&resp, baseURL)
}

func (a *ExtractorAdapter) parse(resp *ExtractorInfoResponse, mirror string) (*Extraction, error) {
	if resp.Formats == nil {
		return nil, &ParseError{Kind: UnexpectedShape, Family: a.family, Err: errors.New("missing formats")}
	}

	var candidates []CandidateFormat
	for _, f := range resp.Formats {
		if f.URL == "" || !isAudioOnly(f) {
			continue
		}
		candidates = append(candidates, CandidateFormat{
			URL:     f.URL,
			Type:    extractorType(f),
			Bitrate: f.ABR.bitsPerSecond(kbpsToBps),
			Quality: parseQuality(f.FormatNote),
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

func isAudioOnly(f ExtractorFormat) bool {
	acodec := strings.ToLower(f.ACodec)
	vcodec := strings.ToLower(f.VCodec)
	return acodec != "" && acodec != codecNone && vcodec == codecNone
}

// extractorType derives a MIME type from the container extension.
func extractorType(f ExtractorFormat) string {
	var mime string
	switch strings.ToLower(f.Ext) {
	case "m4a", "mp4":
		mime = "audio/mp4"
	case "webm":
		mime = "audio/webm"
	case "mp3":
		mime = "audio/mpeg"
	case "ogg", "opus":
		mime = "audio/ogg"
	default:
		mime = "audio/" + strings.ToLower(f.Ext)
	}
	return fmt.Sprintf("%s; codecs=%q", mime, f.ACodec)
}
