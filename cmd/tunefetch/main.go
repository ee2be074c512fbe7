// Package main provides the tunefetch CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tunefetch/internal/core"
	"tunefetch/internal/flood"
	httpserver "tunefetch/internal/http"
	"tunefetch/internal/store"
	"tunefetch/pkg/audiolink"
)

const (
	envPrefix = "TUNEFETCH"
	version   = "1.0.0"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tunefetch",
	Short: "tunefetch - resolve videos to playable audio streams",
	Long: `tunefetch is an HTTP service that turns a video ID or URL into a direct audio
stream URL by falling back across Invidious, Piped and extractor mirrors, optionally
through relay proxies.`,
	RunE: runTunefetch,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := core.DefaultConfig()
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&cfgFile, "config", "", "config file (default is .env)")
	flags.String("log-level", core.DefaultLogLevel, "log level (debug, info, warn, error)")

	flags.String("provider-order", core.DefaultProviderOrder, "Provider family priority (invidious, piped, extractor)")
	flags.String("mirror-policy", defaults.Providers.MirrorPolicy, "Mirror policy (all, fast)")
	flags.String("invidious-mirrors", strings.Join(core.DefaultInvidiousMirrors, ","), "Invidious mirror base URLs")
	flags.String("invidious-fast-mirrors", strings.Join(core.DefaultInvidiousFastMirrors, ","),
		"Invidious mirrors used with the fast policy")
	flags.String("piped-mirrors", strings.Join(core.DefaultPipedMirrors, ","), "Piped API mirror base URLs")
	flags.String("piped-fast-mirrors", "", "Piped mirrors used with the fast policy")
	flags.String("extractor-mirrors", "", "Extractor service base URLs")
	flags.String("extractor-fast-mirrors", "", "Extractor services used with the fast policy")

	flags.Duration("attempt-timeout", defaults.Resolve.AttemptTimeout, "Timeout for a single provider attempt")
	flags.Duration("resolve-deadline", defaults.Resolve.Deadline, "Deadline for a whole resolution")
	flags.Bool("relay-by-default", false, "Retry failed provider requests through relays unless the request opts out")
	flags.String("relay-templates", "", "Relay URL templates containing {url} or {rawurl}")

	flags.Int("search-limit", defaults.Search.Limit, "Maximum number of search results")
	flags.Duration("search-timeout", defaults.Search.Timeout, "Timeout for a single search request")
	flags.Int("search-cache-size", defaults.Search.CacheSize, "Number of cached search queries")
	flags.Duration("search-cache-ttl", defaults.Search.CacheTTL, "Lifetime of cached search results")
	flags.Float64("search-cache-bloom-fp-rate", defaults.Search.BloomFalsePositiveRate,
		"False positive rate of the search cache bloom filter")

	flags.String("server-host", core.DefaultServerHost, "HTTP server host")
	flags.Int("server-port", core.DefaultServerPort, "HTTP server port")
	flags.Duration("server-read-timeout", defaults.Server.ReadTimeout, "HTTP server read timeout")
	flags.Duration("server-write-timeout", defaults.Server.WriteTimeout, "HTTP server write timeout")
	flags.Duration("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout")
	flags.Bool("server-trust-proxy", false, "Use X-Forwarded-For as the client address")

	flags.Int("rate-limit-per-minute", core.DefaultRequestsPerMinute, "Maximum requests per client and route per minute (0 disables)")
	flags.Bool("generate-env-example", false, "Generate .env.example file from current configuration and exit")

	if err := viper.BindPFlags(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(config.Log.Level)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureProviders(cfg)
	configureResolve(cfg)
	configureRelay(cfg)
	configureSearch(cfg)
	configureServer(cfg)
	configureRateLimit(cfg)

	return cfg
}

// List values are read as strings; viper splits env slices on whitespace only.
func configureProviders(cfg *core.Config) {
	cfg.Providers.Order = core.SplitList(viper.GetString("provider-order"))
	cfg.Providers.MirrorPolicy = strings.ToLower(strings.TrimSpace(viper.GetString("mirror-policy")))
	cfg.Providers.Invidious.Mirrors = core.SplitList(viper.GetString("invidious-mirrors"))
	cfg.Providers.Invidious.FastMirrors = core.SplitList(viper.GetString("invidious-fast-mirrors"))
	cfg.Providers.Piped.Mirrors = core.SplitList(viper.GetString("piped-mirrors"))
	cfg.Providers.Piped.FastMirrors = core.SplitList(viper.GetString("piped-fast-mirrors"))
	cfg.Providers.Extractor.Mirrors = core.SplitList(viper.GetString("extractor-mirrors"))
	cfg.Providers.Extractor.FastMirrors = core.SplitList(viper.GetString("extractor-fast-mirrors"))
}

func configureResolve(cfg *core.Config) {
	cfg.Resolve.AttemptTimeout = viper.GetDuration("attempt-timeout")
	cfg.Resolve.Deadline = viper.GetDuration("resolve-deadline")
	cfg.Resolve.RelayByDefault = viper.GetBool("relay-by-default")
}

func configureRelay(cfg *core.Config) {
	cfg.Relay.Templates = core.SplitList(viper.GetString("relay-templates"))
}

func configureSearch(cfg *core.Config) {
	cfg.Search.Limit = viper.GetInt("search-limit")
	cfg.Search.Timeout = viper.GetDuration("search-timeout")
	cfg.Search.CacheSize = viper.GetInt("search-cache-size")
	cfg.Search.CacheTTL = viper.GetDuration("search-cache-ttl")
	cfg.Search.BloomFalsePositiveRate = viper.GetFloat64("search-cache-bloom-fp-rate")
}

func configureServer(cfg *core.Config) {
	cfg.Server.Host = viper.GetString("server-host")
	if cfg.Server.Host == "" {
		cfg.Server.Host = core.DefaultServerHost
	}
	cfg.Server.Port = viper.GetInt("server-port")
	cfg.Server.ReadTimeout = viper.GetDuration("server-read-timeout")
	cfg.Server.WriteTimeout = viper.GetDuration("server-write-timeout")
	cfg.Server.ShutdownTimeout = viper.GetDuration("server-shutdown-timeout")
	cfg.Server.TrustProxy = viper.GetBool("server-trust-proxy")
	cfg.Log.Level = viper.GetString("log-level")
}

func configureRateLimit(cfg *core.Config) {
	cfg.RateLimit.RequestsPerMinute = viper.GetInt("rate-limit-per-minute")
	if cfg.RateLimit.RequestsPerMinute < 0 {
		fmt.Printf("Warning: Invalid rate limit (%d), disabling rate limiting\n", cfg.RateLimit.RequestsPerMinute)
		cfg.RateLimit.RequestsPerMinute = 0
	}
}

func buildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runTunefetch(cmd *cobra.Command, _ []string) error {
	if viper.GetBool("generate-env-example") {
		return generateEnvExample(cmd)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting tunefetch",
		zap.String("version", version),
		zap.Strings("provider_order", config.Providers.Order),
		zap.String("mirror_policy", config.Providers.MirrorPolicy),
		zap.Int("relays", len(config.Relay.Templates)),
		zap.Duration("deadline", config.Resolve.Deadline))

	if err := config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	svcs, err := initializeServices()
	if err != nil {
		return err
	}
	defer svcs.floodgate.Stop()

	return runServices(ctx, svcs)
}

type services struct {
	resolver   *audiolink.Resolver
	searcher   *audiolink.Searcher
	cache      *store.SearchCache
	floodgate  *flood.Floodgate
	httpServer *httpserver.Server
}

func initializeServices() (*services, error) {
	families, err := config.Families()
	if err != nil {
		return nil, err
	}
	registry, err := audiolink.NewRegistry(families, audiolink.MirrorPolicy(config.Providers.MirrorPolicy))
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	relays, err := audiolink.ParseRelays(config.Relay.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to parse relays: %w", err)
	}

	direct := audiolink.NewHTTPFetcher(nil)
	var relay audiolink.Fetcher
	if len(relays) > 0 {
		relay = audiolink.NewRelayFetcher(direct, relays, logger.Named("relay"))
	}

	resolver, err := audiolink.NewResolver(registry, direct, relay, audiolink.Options{
		AttemptTimeout: config.Resolve.AttemptTimeout,
		Deadline:       config.Resolve.Deadline,
	}, logger.Named("resolver"))
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	searcher := audiolink.NewSearcher(registry, searchFetcher(direct, relay, config.Resolve.RelayByDefault),
		config.Search.Limit, config.Search.Timeout, logger.Named("search"))
	cache := store.NewSearchCache(config.Search.CacheSize, config.Search.CacheTTL,
		config.Search.BloomFalsePositiveRate)
	floodgate := flood.New(config.RateLimit.RequestsPerMinute)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpServer, err := httpserver.NewServer(config, httpserver.Services{
		Resolver:  resolver,
		Searcher:  searcher,
		Cache:     cache,
		Floodgate: floodgate,
	}, promRegistry, logger.Named("http"))
	if err != nil {
		floodgate.Stop()
		return nil, fmt.Errorf("failed to create HTTP server: %w", err)
	}
	resolver.SetObserver(httpServer.GetMetrics())

	for _, f := range registry.Families() {
		logger.Info("Provider family configured",
			zap.String("family", f.Name),
			zap.Int("mirrors", len(f.Mirrors)),
			zap.Int("fast_mirrors", len(f.FastMirrors)))
	}

	return &services{
		resolver:   resolver,
		searcher:   searcher,
		cache:      cache,
		floodgate:  floodgate,
		httpServer: httpServer,
	}, nil
}

// searchFetcher picks the fetcher for /search, which has no per-request relay
// switch and follows relay-by-default instead.
func searchFetcher(direct, relay audiolink.Fetcher, relayByDefault bool) audiolink.Fetcher {
	if relayByDefault && relay != nil {
		return relay
	}
	return direct
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	logger.Info("tunefetch started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Bool("search_available", svcs.searcher.Available()),
		zap.Bool("rate_limit_enabled", svcs.floodgate.Enabled()))

	if err := g.Wait(); err != nil {
		logger.Error("tunefetch stopped with error", zap.Error(err))
		return err
	}

	svcs.cache.Clear()
	logger.Info("tunefetch stopped gracefully")
	return nil
}
