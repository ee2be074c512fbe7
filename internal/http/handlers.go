package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"tunefetch/internal/flood"
	"tunefetch/pkg/audiolink"
)

type errorResponse struct {
	Error string `json:"error"`
}

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failureResponse struct {
	Success   bool              `json:"success"`
	Error     string            `json:"error"`
	Reason    string            `json:"reason,omitempty"`
	Attempted []string          `json:"attempted,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

type homeResponse struct {
	Status    string   `json:"status"`
	Message   string   `json:"message"`
	Service   string   `json:"service"`
	Timestamp string   `json:"timestamp"`
	Port      int      `json:"port"`
	Endpoints []string `json:"endpoints"`
}

type healthResponse struct {
	Status        string       `json:"status"`
	Service       string       `json:"service"`
	UptimeSeconds float64      `json:"uptime"`
	Memory        memoryStats  `json:"memory"`
	Timestamp     string       `json:"timestamp"`
	RateLimit     *flood.Stats `json:"rate_limit,omitempty"`
	SearchCache   *int         `json:"search_cache_entries,omitempty"`
}

type memoryStats struct {
	RSS       uint64 `json:"rss"`
	VMS       uint64 `json:"vms"`
	HeapAlloc uint64 `json:"heap_alloc"`
	HeapSys   uint64 `json:"heap_sys"`
}

var endpoints = []string{
	"GET /audio?id=<video id or URL>&relay=<bool>&timeout=<ms>",
	"GET /search?q=<text>",
	"GET /health",
	"GET /readyz",
	"GET /metrics",
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(body); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	if r.URL.Path != "/" {
		writeJSON(w, logger, http.StatusNotFound, errorResponse{Error: "Endpoint not found"})
		return
	}

	writeJSON(w, logger, http.StatusOK, homeResponse{
		Status:    "ok",
		Message:   "Server is running!",
		Service:   serviceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Port:      s.config.Server.Port,
		Endpoints: endpoints,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "healthy",
		Service:       serviceName,
		UptimeSeconds: time.Since(s.started).Seconds(),
		Memory:        readMemoryStats(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}
	if s.services.Floodgate != nil {
		stats := s.services.Floodgate.GetStats()
		resp.RateLimit = &stats
	}
	if s.services.Cache != nil {
		size := s.services.Cache.Size()
		resp.SearchCache = &size
		s.metrics.SearchCacheSize.Set(float64(size))
	}

	writeJSON(w, s.requestLogger(r), http.StatusOK, resp)
}

func readMemoryStats() memoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats := memoryStats{
		HeapAlloc: ms.HeapAlloc,
		HeapSys:   ms.HeapSys,
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			stats.RSS = memInfo.RSS
			stats.VMS = memInfo.VMS
		}
	}

	return stats
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	if !s.ready.Load() {
		writeJSON(w, logger, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "service": serviceName})
		return
	}
	writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ready", "service": serviceName})
}

func (s *Server) audioHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)
	query := r.URL.Query()

	rawID := query.Get("id")
	if strings.TrimSpace(rawID) == "" {
		writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "Missing 'id' parameter"})
		return
	}
	id, err := s.parser.ParseIdentifier(rawID)
	if err != nil {
		writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "Invalid 'id' parameter"})
		return
	}
	opts, err := s.audioOptions(query)
	if err != nil {
		writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	logger.Debug("Resolving audio",
		zap.String("id", id),
		zap.Bool("relay", opts.RelayEnabled),
		zap.Duration("deadline", opts.Deadline))

	start := time.Now()
	res, err := s.services.Resolver.Resolve(r.Context(), id, opts)
	elapsed := time.Since(start)

	if err == nil {
		s.metrics.RecordResolution(string(audiolink.OutcomeSuccess), elapsed)
		writeJSON(w, logger, http.StatusOK, successResponse{Success: true, Data: res})
		return
	}

	var exhausted *audiolink.ExhaustedError
	if errors.As(err, &exhausted) {
		s.metrics.RecordResolution(string(exhausted.Reason), elapsed)

		status := http.StatusBadGateway
		if exhausted.Reason == audiolink.OutcomeTimeout || exhausted.Reason == audiolink.OutcomeCanceled {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, logger, status, failureResponse{
			Success:   false,
			Error:     "All providers failed",
			Reason:    string(exhausted.Reason),
			Attempted: exhausted.AttemptedBackends(),
			Errors:    exhausted.LastErrors(),
		})
		return
	}

	s.metrics.RecordResolution("error", elapsed)
	logger.Error("Audio resolution failed", zap.String("id", id), zap.Error(err))
	writeJSON(w, logger, http.StatusInternalServerError, failureResponse{Success: false, Error: "Internal server error"})
}

// audioOptions reads the optional relay and timeout parameters. A timeout can
// shorten the configured deadline but never extend it.
func (s *Server) audioOptions(query url.Values) (audiolink.Options, error) {
	defaults := s.services.Resolver.Defaults()
	opts := audiolink.Options{RelayEnabled: s.config.Resolve.RelayByDefault}

	if raw := query.Get("relay"); raw != "" {
		relay, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, errors.New("invalid 'relay' parameter")
		}
		opts.RelayEnabled = relay
	}

	if raw := query.Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return opts, errors.New("invalid 'timeout' parameter")
		}
		timeout := time.Duration(ms) * time.Millisecond
		if defaults.Deadline <= 0 || timeout < defaults.Deadline {
			opts.Deadline = timeout
		}
	}

	return opts, nil
}

func (s *Server) searchHandler(w http.ResponseWriter, r *http.Request) {
	logger := s.requestLogger(r)

	if s.services.Searcher == nil || !s.services.Searcher.Available() {
		writeJSON(w, logger, http.StatusServiceUnavailable, errorResponse{Error: "Search service not available"})
		return
	}

	q := s.parser.NormalizeQuery(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, logger, http.StatusBadRequest, errorResponse{Error: "Missing 'q' parameter"})
		return
	}

	key := s.parser.QueryKey(q)
	if s.services.Cache != nil && key != "" {
		if results, ok := s.services.Cache.Get(key); ok {
			s.metrics.RecordSearch("hit")
			writeJSON(w, logger, http.StatusOK, successResponse{Success: true, Data: results})
			return
		}
	}

	results, err := s.services.Searcher.Search(r.Context(), q)
	if err != nil {
		s.metrics.RecordSearch("error")
		logger.Warn("Search failed", zap.String("query", q), zap.Error(err))
		writeJSON(w, logger, http.StatusBadGateway, failureResponse{Success: false, Error: "Search failed"})
		return
	}
	if results == nil {
		results = []audiolink.SearchResult{}
	}

	s.metrics.RecordSearch("miss")
	if s.services.Cache != nil && key != "" {
		s.services.Cache.Add(key, results)
		s.metrics.SearchCacheSize.Set(float64(s.services.Cache.Size()))
	}

	writeJSON(w, logger, http.StatusOK, successResponse{Success: true, Data: results})
}
