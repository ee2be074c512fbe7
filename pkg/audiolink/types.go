// Package audiolink resolves media identifiers into playable audio stream URLs
// by falling back across families of interchangeable third-party providers.
package audiolink

import (
	"time"
)

// Quality is a coarse audio quality tier reported by some providers.
type Quality int

const (
	// QualityUnknown is used when the provider reports no tier.
	QualityUnknown Quality = iota
	// QualityLow is the lowest reported tier.
	QualityLow
	// QualityMedium is the middle tier.
	QualityMedium
	// QualityHigh is the best reported tier.
	QualityHigh
)

func (q Quality) String() string {
	switch q {
	case QualityLow:
		return "low"
	case QualityMedium:
		return "medium"
	case QualityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// CandidateFormat is one playable audio representation reported by a provider.
type CandidateFormat struct {
	URL     string  // Stream URL exactly as returned by the provider.
	Type    string  // MIME type, possibly with codecs parameter.
	Bitrate int64   // Bits per second, 0 when unknown.
	Quality Quality // Provider tier, QualityUnknown when absent.
	Family  string  // Family that produced the candidate.
	Mirror  string  // Mirror base URL that produced the candidate.
}

// Extraction is the normalized outcome of one successful adapter call.
type Extraction struct {
	Candidates      []CandidateFormat
	Title           string
	Author          string
	DurationSeconds int
}

// Resolution is the success payload of a resolution call.
type Resolution struct {
	URL             string `json:"url"`
	Type            string `json:"type"`
	Bitrate         int64  `json:"bitrate"`
	Title           string `json:"title,omitempty"`
	Author          string `json:"author,omitempty"`
	DurationSeconds int    `json:"duration,omitempty"`
	Backend         string `json:"backend"`
	Mirror          string `json:"mirror"`
}

// Outcome classifies a single (family, mirror) attempt.
type Outcome string

const (
	// OutcomeSuccess means the attempt yielded at least one candidate.
	OutcomeSuccess Outcome = "success"
	// OutcomeNoCandidates means the provider answered without audio formats.
	OutcomeNoCandidates Outcome = "no_candidates"
	// OutcomeTransportError covers connect failures and bad HTTP statuses.
	OutcomeTransportError Outcome = "transport_error"
	// OutcomeTimeout means the attempt or the whole call ran out of time.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeParseError means the response did not match the family schema.
	OutcomeParseError Outcome = "parse_error"
	// OutcomeCanceled means the caller went away mid-attempt.
	OutcomeCanceled Outcome = "canceled"
)

// AttemptRecord describes one (family, mirror) attempt within a resolution call.
type AttemptRecord struct {
	Family  string
	Mirror  string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
	Relayed bool // A relay, not the mirror itself, answered.
}

// Backend returns the "family@mirror" label used in failure payloads.
func (a AttemptRecord) Backend() string {
	return a.Family + "@" + a.Mirror
}

// Reason returns a non-empty, human-readable failure reason.
func (a AttemptRecord) Reason() string {
	if a.Err != nil {
		return string(a.Outcome) + ": " + a.Err.Error()
	}
	return string(a.Outcome)
}
