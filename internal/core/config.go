// Package core holds the tunefetch service configuration.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tunefetch/pkg/audiolink"
)

// Configuration defaults.
const (
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 3000
	DefaultReadTimeout            = 10 * time.Second
	DefaultWriteTimeout           = 30 * time.Second
	DefaultShutdownTimeout        = 5 * time.Second
	DefaultRequestsPerMinute      = 60
	DefaultSearchCacheSize        = 512
	DefaultSearchCacheTTL         = 10 * time.Minute
	DefaultBloomFalsePositiveRate = 0.001
	DefaultLogLevel               = "info"
	DefaultProviderOrder          = "invidious,piped,extractor"
)

// Default public mirrors per provider family.
var (
	DefaultInvidiousMirrors = []string{
		"https://inv.nadeko.net",
		"https://vid.puffyan.us",
		"https://invidious.privacyredirect.com",
	}
	DefaultInvidiousFastMirrors = []string{
		"https://inv.nadeko.net",
	}
	DefaultPipedMirrors = []string{
		"https://pipedapi.kavin.rocks",
		"https://pipedapi.adminforge.de",
	}
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

type Config struct {
	Providers ProvidersConfig
	Resolve   ResolveConfig
	Relay     RelayConfig
	Search    SearchConfig
	Server    ServerConfig
	Log       LogConfig
	RateLimit RateLimitConfig
}

// ProviderConfig configures one provider family. The family is named after its kind.
type ProviderConfig struct {
	Mirrors     []string
	FastMirrors []string
}

type ProvidersConfig struct {
	Order        []string // Family priority, first tried first.
	MirrorPolicy string   // "all" or "fast".
	Invidious    ProviderConfig
	Piped        ProviderConfig
	Extractor    ProviderConfig
}

type ResolveConfig struct {
	AttemptTimeout time.Duration
	Deadline       time.Duration
	RelayByDefault bool
}

type RelayConfig struct {
	Templates []string
}

type SearchConfig struct {
	Limit                  int
	Timeout                time.Duration
	CacheSize              int
	CacheTTL               time.Duration
	BloomFalsePositiveRate float64
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	TrustProxy      bool // Take the client address from X-Forwarded-For.
}

type LogConfig struct {
	Level string
}

type RateLimitConfig struct {
	RequestsPerMinute int // Per client and route; 0 disables.
}

func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Order:        SplitList(DefaultProviderOrder),
			MirrorPolicy: string(audiolink.MirrorPolicyAll),
			Invidious: ProviderConfig{
				Mirrors:     append([]string(nil), DefaultInvidiousMirrors...),
				FastMirrors: append([]string(nil), DefaultInvidiousFastMirrors...),
			},
			Piped: ProviderConfig{
				Mirrors: append([]string(nil), DefaultPipedMirrors...),
			},
		},
		Resolve: ResolveConfig{
			AttemptTimeout: audiolink.DefaultAttemptTimeout,
			Deadline:       audiolink.DefaultDeadline,
		},
		Search: SearchConfig{
			Limit:                  audiolink.DefaultSearchLimit,
			Timeout:                audiolink.DefaultAttemptTimeout,
			CacheSize:              DefaultSearchCacheSize,
			CacheTTL:               DefaultSearchCacheTTL,
			BloomFalsePositiveRate: DefaultBloomFalsePositiveRate,
		},
		Server: ServerConfig{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: DefaultRequestsPerMinute,
		},
	}
}

// Families returns the configured provider families in priority order.
// Families without mirrors are left out.
func (c *Config) Families() ([]audiolink.Family, error) {
	var families []audiolink.Family
	seen := make(map[string]bool)

	for _, name := range c.Providers.Order {
		kind := audiolink.AdapterKind(strings.ToLower(strings.TrimSpace(name)))
		if seen[string(kind)] {
			return nil, fmt.Errorf("provider %q listed twice in provider order", kind)
		}
		seen[string(kind)] = true

		var pc ProviderConfig
		switch kind {
		case audiolink.KindInvidious:
			pc = c.Providers.Invidious
		case audiolink.KindPiped:
			pc = c.Providers.Piped
		case audiolink.KindExtractor:
			pc = c.Providers.Extractor
		default:
			return nil, fmt.Errorf("provider order: %w: %q", audiolink.ErrUnknownFamily, name)
		}

		if len(pc.Mirrors) == 0 {
			continue
		}
		families = append(families, audiolink.Family{
			Name:        string(kind),
			Kind:        kind,
			Mirrors:     pc.Mirrors,
			FastMirrors: pc.FastMirrors,
		})
	}

	if len(families) == 0 {
		return nil, errors.New("no provider family has any mirrors configured")
	}
	return families, nil
}

// Validate checks the configuration before any service is built.
func (c *Config) Validate() error {
	families, err := c.Families()
	if err != nil {
		return err
	}
	if _, err := audiolink.NewRegistry(families, audiolink.MirrorPolicy(c.Providers.MirrorPolicy)); err != nil {
		return fmt.Errorf("provider registry: %w", err)
	}
	if _, err := audiolink.ParseRelays(c.Relay.Templates); err != nil {
		return fmt.Errorf("relays: %w", err)
	}

	if c.Resolve.AttemptTimeout <= 0 {
		return errors.New("attempt timeout must be positive")
	}
	if c.Resolve.Deadline <= 0 {
		return errors.New("resolve deadline must be positive")
	}

	if c.Search.Limit <= 0 {
		return errors.New("search limit must be positive")
	}
	if c.Search.CacheSize <= 0 {
		return errors.New("search cache size must be positive")
	}
	if c.Search.BloomFalsePositiveRate <= 0 || c.Search.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("bloom false positive rate must be in (0, 1), got %v", c.Search.BloomFalsePositiveRate)
	}

	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Resolve.Deadline {
		return fmt.Errorf("server write timeout %v must exceed the resolve deadline %v",
			c.Server.WriteTimeout, c.Resolve.Deadline)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %q", c.Log.Level)
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return errors.New("requests per minute must not be negative")
	}

	return nil
}

// SplitList splits a comma or whitespace separated list, dropping empty items.
func SplitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
