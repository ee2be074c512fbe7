package audiolink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// AdapterKind names the response schema a family speaks.
type AdapterKind string

const (
	// KindInvidious speaks the Invidious /api/v1/videos schema.
	KindInvidious AdapterKind = "invidious"
	// KindPiped speaks the Piped /streams schema.
	KindPiped AdapterKind = "piped"
	// KindExtractor speaks a yt-dlp style info schema and is meant as the last resort.
	KindExtractor AdapterKind = "extractor"
)

// Adapter knows how to ask one family for an identifier's formats and how to
// normalize that family's answer.
type Adapter interface {
	// Kind returns the schema the adapter speaks.
	Kind() AdapterKind

	// FetchCandidates issues one request to baseURL through fetcher and returns
	// the audio-capable formats. It fails with *TransportError, *ParseError or
	// ErrEmptyResult.
	FetchCandidates(ctx context.Context, fetcher Fetcher, id, baseURL string, timeout time.Duration) (*Extraction, error)
}

// NewAdapter returns the adapter for a family kind. Dispatch happens once, when
// the resolver is built.
func NewAdapter(kind AdapterKind, family string) (Adapter, error) {
	switch kind {
	case KindInvidious:
		return &InvidiousAdapter{family: family}, nil
	case KindPiped:
		return &PipedAdapter{family: family}, nil
	case KindExtractor:
		return &ExtractorAdapter{family: family}, nil
	default:
		return nil, fmt.Errorf("unsupported adapter kind: %s", kind)
	}
}

// decodeStrict decodes a JSON object body into dest. Bodies that are not a JSON
// object (HTML error pages, arrays, empty bodies) are shape violations.
func decodeStrict(family string, body []byte, dest interface{}) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &ParseError{Kind: UnexpectedShape, Family: family, Err: fmt.Errorf("body is not a JSON object")}
	}
	if err := json.Unmarshal(trimmed, dest); err != nil {
		return &ParseError{Kind: UnexpectedShape, Family: family, Err: err}
	}
	return nil
}

// flexNumber accepts JSON numbers and numeric strings. Some providers encode
// bitrates as strings. Anything else, such as null, "unknown" or an object,
// decodes to zero so one odd format never spoils the rest of the response.
type flexNumber float64

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = flexNumber(v)
	return nil
}

// bitsPerSecond converts a bitrate to a non-negative integer. multiplier is
// 1 for providers reporting bps and 1000 for those reporting kbps.
func (n flexNumber) bitsPerSecond(multiplier float64) int64 {
	v := float64(n) * multiplier
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v))
}

// isAudioType reports whether a MIME type describes an audio stream.
func isAudioType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "audio")
}

// parseQuality maps the various provider tier labels onto Quality.
func parseQuality(label string) Quality {
	label = strings.ToLower(strings.TrimSpace(label))
	label = strings.TrimPrefix(label, "audio_quality_")
	switch label {
	case "high":
		return QualityHigh
	case "medium":
		return QualityMedium
	case "low", "ultralow":
		return QualityLow
	default:
		return QualityUnknown
	}
}

func emptyResult(family, mirror string) error {
	return fmt.Errorf("%s at %s: %w", family, mirror, ErrEmptyResult)
}
