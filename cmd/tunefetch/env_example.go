package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func generateEnvExample(cmd *cobra.Command) error {
	fmt.Println("Generating .env.example file from current configuration...")

	content := generateEnvExampleContent(cmd)

	if err := os.WriteFile(".env.example", []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write .env.example: %w", err)
	}

	fmt.Println("✅ Successfully generated .env.example file")
	return nil
}

func generateEnvExampleContent(cmd *cobra.Command) string {
	var content strings.Builder

	content.WriteString("# =============================================================================\n")
	content.WriteString("# tunefetch Configuration\n")
	content.WriteString("# =============================================================================\n")
	content.WriteString("#\n")
	content.WriteString("# Copy this file to .env and update with your values\n")
	content.WriteString("# All environment variables have CLI flag equivalents (use --help to see them)\n")
	content.WriteString("#\n")
	content.WriteString("# Format: " + envPrefix + "_<SECTION>_<SETTING>=value\n")
	content.WriteString("# CLI equivalent: --<section>-<setting>\n")
	content.WriteString("# Lists are comma separated. Durations use Go syntax (10s, 2m).\n")
	content.WriteString("#\n\n")

	generateProvidersSection(&content, cmd)
	generateResolveSection(&content, cmd)
	generateRelaySection(&content)
	generateSearchSection(&content, cmd)
	generateServerSection(&content, cmd)
	generateRateLimitSection(&content, cmd)
	generateLoggingSection(&content, cmd)

	return content.String()
}

func flagToEnvVar(flagName string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

func getDefaultValueString(cmd *cobra.Command, flagName string) string {
	if f := cmd.PersistentFlags().Lookup(flagName); f != nil {
		return f.DefValue
	}
	return ""
}

func writeSectionHeader(content *strings.Builder, title string, flags ...string) {
	content.WriteString("# -----------------------------------------------------------------------------\n")
	content.WriteString("# " + title + "\n")
	content.WriteString("# -----------------------------------------------------------------------------\n")
	if len(flags) > 0 {
		content.WriteString("# CLI: --" + strings.Join(flags, ", --") + "\n")
	}
}

func writeDefaultSetting(content *strings.Builder, cmd *cobra.Command, flagName, description string) {
	def := getDefaultValueString(cmd, flagName)
	fmt.Fprintf(content, "%s=%s    # %s (default: %s)\n", flagToEnvVar(flagName), def, description, def)
}

func generateProvidersSection(content *strings.Builder, cmd *cobra.Command) {
	content.WriteString("# =============================================================================\n")
	content.WriteString("# PROVIDERS - Families are tried in order, mirrors round-robin\n")
	content.WriteString("# =============================================================================\n\n")

	writeSectionHeader(content, "Family order and mirror policy", "provider-order", "mirror-policy")
	writeDefaultSetting(content, cmd, "provider-order", "Families tried first to last")
	writeDefaultSetting(content, cmd, "mirror-policy", "all: every mirror, fast: only *_FAST_MIRRORS")
	content.WriteString("\n")

	writeSectionHeader(content, "Invidious", "invidious-mirrors", "invidious-fast-mirrors")
	writeDefaultSetting(content, cmd, "invidious-mirrors", "Invidious base URLs, also used for search")
	writeDefaultSetting(content, cmd, "invidious-fast-mirrors", "Subset used with the fast policy")
	content.WriteString("\n")

	writeSectionHeader(content, "Piped", "piped-mirrors", "piped-fast-mirrors")
	writeDefaultSetting(content, cmd, "piped-mirrors", "Piped API base URLs")
	writeDefaultSetting(content, cmd, "piped-fast-mirrors", "Subset used with the fast policy")
	content.WriteString("\n")

	writeSectionHeader(content, "Extractor services (last resort)", "extractor-mirrors", "extractor-fast-mirrors")
	fmt.Fprintf(content, "# %s=https://extractor.example.com    # Services answering /api/info?url=<video URL>\n",
		flagToEnvVar("extractor-mirrors"))
	writeDefaultSetting(content, cmd, "extractor-fast-mirrors", "Subset used with the fast policy")
	content.WriteString("\n")
}

func generateResolveSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Resolution timeouts", "attempt-timeout", "resolve-deadline", "relay-by-default")
	writeDefaultSetting(content, cmd, "attempt-timeout", "Per provider attempt")
	writeDefaultSetting(content, cmd, "resolve-deadline", "Whole resolution, must stay below the server write timeout")
	writeDefaultSetting(content, cmd, "relay-by-default", "Use relays unless a request passes relay=0")
	content.WriteString("\n")
}

func generateRelaySection(content *strings.Builder) {
	writeSectionHeader(content, "Relays - tried only after a direct request failed", "relay-templates")
	content.WriteString("# {url} is replaced with the escaped target URL, {rawurl} with the URL as-is\n")
	fmt.Fprintf(content, "# %s=https://relay.example.com/?url={url},https://other.example.com/{rawurl}\n",
		flagToEnvVar("relay-templates"))
	content.WriteString("\n")
}

func generateSearchSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Search", "search-limit", "search-timeout", "search-cache-size",
		"search-cache-ttl", "search-cache-bloom-fp-rate")
	writeDefaultSetting(content, cmd, "search-limit", "Maximum results per query")
	writeDefaultSetting(content, cmd, "search-timeout", "Per mirror search request")
	writeDefaultSetting(content, cmd, "search-cache-size", "Cached queries")
	writeDefaultSetting(content, cmd, "search-cache-ttl", "Lifetime of cached results")
	writeDefaultSetting(content, cmd, "search-cache-bloom-fp-rate", "Cache miss prefilter accuracy")
	content.WriteString("\n")
}

func generateServerSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "HTTP Server Configuration", "server-host", "server-port",
		"server-read-timeout", "server-write-timeout", "server-shutdown-timeout", "server-trust-proxy")
	writeDefaultSetting(content, cmd, "server-host", "Server bind address")
	writeDefaultSetting(content, cmd, "server-port", "Server port")
	writeDefaultSetting(content, cmd, "server-read-timeout", "Request read timeout")
	writeDefaultSetting(content, cmd, "server-write-timeout", "Response write timeout")
	writeDefaultSetting(content, cmd, "server-shutdown-timeout", "Graceful shutdown timeout")
	writeDefaultSetting(content, cmd, "server-trust-proxy", "Rate limit by X-Forwarded-For behind a proxy")
	content.WriteString("\n")
}

func generateRateLimitSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Rate limiting for /audio and /search", "rate-limit-per-minute")
	writeDefaultSetting(content, cmd, "rate-limit-per-minute", "Requests per client and route per minute, 0 disables")
	content.WriteString("\n")
}

func generateLoggingSection(content *strings.Builder, cmd *cobra.Command) {
	writeSectionHeader(content, "Logging Configuration", "log-level")
	writeDefaultSetting(content, cmd, "log-level", "Log level: debug, info, warn, error")
}
