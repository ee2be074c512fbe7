package audiolink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultAttemptTimeout bounds a single (family, mirror) attempt.
	DefaultAttemptTimeout = 10 * time.Second
	// DefaultDeadline bounds a whole resolution call.
	DefaultDeadline = 25 * time.Second

	// OutcomeExhausted is the ExhaustedError reason when every attempt ran to completion and failed.
	OutcomeExhausted Outcome = "exhausted"
)

// ErrEmptyIdentifier is returned when Resolve is called without an identifier.
var ErrEmptyIdentifier = errors.New("empty media identifier")

// Options tune a single resolution call. Zero values take the resolver defaults.
type Options struct {
	AttemptTimeout time.Duration // Per (family, mirror) attempt, relays included per relay.
	Deadline       time.Duration // Whole call; cancels the in-flight attempt when exceeded.
	RelayEnabled   bool          // Retry failed direct fetches through relays.
}

// Observer is notified of every attempt, for metrics.
type Observer interface {
	ObserveAttempt(rec AttemptRecord)
}

// Resolver walks provider families in priority order and their mirrors in
// rotation order until one yields audio formats.
type Resolver struct {
	registry *Registry
	adapters map[string]Adapter
	direct   Fetcher
	relay    Fetcher
	defaults Options
	observer Observer
	logger   *zap.Logger
}

// NewResolver builds one adapter per registry family. relay may be nil, in
// which case relay mode falls back to direct fetches.
func NewResolver(registry *Registry, direct, relay Fetcher, defaults Options, logger *zap.Logger) (*Resolver, error) {
	if registry == nil {
		return nil, errors.New("resolver needs a registry")
	}
	if direct == nil {
		return nil, errors.New("resolver needs a fetcher")
	}

	adapters := make(map[string]Adapter)
	for _, f := range registry.Families() {
		adapter, err := NewAdapter(f.Kind, f.Name)
		if err != nil {
			return nil, fmt.Errorf("provider family %q: %w", f.Name, err)
		}
		adapters[f.Name] = adapter
	}

	if defaults.AttemptTimeout <= 0 {
		defaults.AttemptTimeout = DefaultAttemptTimeout
	}
	if defaults.Deadline < 0 {
		defaults.Deadline = 0
	}

	return &Resolver{
		registry: registry,
		adapters: adapters,
		direct:   direct,
		relay:    relay,
		defaults: defaults,
		logger:   logger,
	}, nil
}

// SetObserver registers the attempt observer. Call before serving requests.
func (r *Resolver) SetObserver(o Observer) {
	r.observer = o
}

// Defaults returns the options used for zero-valued fields.
func (r *Resolver) Defaults() Options {
	return r.defaults
}

// Resolve returns the best audio stream for id, or an *ExhaustedError listing
// every attempted (family, mirror) pair.
func (r *Resolver) Resolve(ctx context.Context, id string, opts Options) (*Resolution, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrEmptyIdentifier
	}

	opts = r.withDefaults(opts)
	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}

	fetcher := r.direct
	if opts.RelayEnabled && r.relay != nil {
		fetcher = r.relay
	}

	var attempts []AttemptRecord
	for _, family := range r.registry.Families() {
		mirrors, err := r.registry.Rotation(family.Name)
		if err != nil {
			return nil, err
		}
		adapter := r.adapters[family.Name]

		for _, mirror := range mirrors {
			if reason, done := stopReason(ctx); done {
				return nil, r.exhausted(id, reason, attempts)
			}

			rec, extraction := r.attempt(ctx, adapter, fetcher, family.Name, mirror, id, opts.AttemptTimeout)
			attempts = append(attempts, rec)
			if r.observer != nil {
				r.observer.ObserveAttempt(rec)
			}

			if extraction != nil {
				best := SelectBest(extraction.Candidates)
				r.logger.Info("Resolved audio stream",
					zap.String("id", id),
					zap.String("family", family.Name),
					zap.String("mirror", mirror),
					zap.String("type", best.Type),
					zap.Int64("bitrate", best.Bitrate),
					zap.Int("attempts", len(attempts)))

				return &Resolution{
					URL:             best.URL,
					Type:            best.Type,
					Bitrate:         best.Bitrate,
					Title:           extraction.Title,
					Author:          extraction.Author,
					DurationSeconds: extraction.DurationSeconds,
					Backend:         family.Name,
					Mirror:          mirror,
				}, nil
			}
		}
	}

	if reason, done := stopReason(ctx); done {
		return nil, r.exhausted(id, reason, attempts)
	}
	return nil, r.exhausted(id, OutcomeExhausted, attempts)
}

// attempt runs one adapter call and records its outcome. A nil extraction
// means the attempt failed.
func (r *Resolver) attempt(
	ctx context.Context,
	adapter Adapter,
	fetcher Fetcher,
	family, mirror, id string,
	timeout time.Duration,
) (AttemptRecord, *Extraction) {
	start := time.Now()
	traced, trace := withRelayTrace(ctx)
	extraction, err := adapter.FetchCandidates(traced, fetcher, id, mirror, timeout)
	if err == nil && (extraction == nil || len(extraction.Candidates) == 0) {
		err = emptyResult(family, mirror)
	}

	rec := AttemptRecord{
		Family:  family,
		Mirror:  mirror,
		Outcome: classify(err),
		Err:     err,
		Elapsed: time.Since(start),
		Relayed: trace.used.Load(),
	}
	if err == nil {
		return rec, extraction
	}

	// The whole call ran out of time or was abandoned, whatever the adapter saw.
	if reason, done := stopReason(ctx); done {
		rec.Outcome = reason
	}

	fields := []zap.Field{
		zap.String("id", id),
		zap.String("family", family),
		zap.String("mirror", mirror),
		zap.String("outcome", string(rec.Outcome)),
		zap.Duration("elapsed", rec.Elapsed),
		zap.Error(err),
	}
	if rec.Outcome == OutcomeNoCandidates {
		r.logger.Debug("Provider returned no audio formats", fields...)
	} else {
		r.logger.Warn("Provider attempt failed", fields...)
	}

	return rec, nil
}

func (r *Resolver) exhausted(id string, reason Outcome, attempts []AttemptRecord) error {
	r.logger.Warn("All providers exhausted",
		zap.String("id", id),
		zap.String("reason", string(reason)),
		zap.Int("attempts", len(attempts)))

	return &ExhaustedError{ID: id, Reason: reason, Attempts: attempts}
}

func (r *Resolver) withDefaults(opts Options) Options {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = r.defaults.AttemptTimeout
	}
	if opts.Deadline <= 0 {
		opts.Deadline = r.defaults.Deadline
	}
	return opts
}

// stopReason reports whether ctx is done and why.
func stopReason(ctx context.Context) (Outcome, bool) {
	switch err := ctx.Err(); {
	case err == nil:
		return "", false
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout, true
	default:
		return OutcomeCanceled, true
	}
}
