// Package text parses media identifiers and normalises search queries.
package text

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// VideoIDLength is the length of a YouTube video identifier.
	VideoIDLength = 11
)

var (
	// ErrInvalidIdentifier is returned when input is neither a video ID nor a supported URL.
	ErrInvalidIdentifier = errors.New("invalid media identifier")

	videoIDRegex    = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	whitespaceRegex = regexp.MustCompile(`\s+`)

	youtubeDomains = map[string]bool{
		"youtube.com":       true,
		"www.youtube.com":   true,
		"m.youtube.com":     true,
		"music.youtube.com": true,
	}

	// Path prefixes that carry the video ID as the next segment.
	idPathPrefixes = []string{"shorts", "embed", "live", "v"}

	trackingParams = []string{
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"si", "feature", "pp",
	}
)

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// ParseIdentifier accepts a bare video ID or a YouTube URL and returns the video ID.
func (p *Parser) ParseIdentifier(input string) (string, error) {
	input = strings.TrimSpace(norm.NFKC.String(input))
	if input == "" {
		return "", ErrInvalidIdentifier
	}

	if videoIDRegex.MatchString(input) {
		return input, nil
	}

	// Scheme-less links are common in pasted input.
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		if !strings.Contains(input, "/") {
			return "", ErrInvalidIdentifier
		}
		input = "https://" + input
	}

	cleaned := p.cleanURL(input)
	if cleaned == "" {
		return "", ErrInvalidIdentifier
	}

	id := p.extractVideoID(cleaned)
	if !videoIDRegex.MatchString(id) {
		return "", ErrInvalidIdentifier
	}
	return id, nil
}

func (p *Parser) extractVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	hostname := strings.ToLower(u.Hostname())
	pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")

	if hostname == "youtu.be" || hostname == "www.youtu.be" {
		return pathParts[0]
	}

	if !youtubeDomains[hostname] {
		return ""
	}

	if pathParts[0] == "watch" {
		return u.Query().Get("v")
	}

	for i, part := range pathParts {
		for _, prefix := range idPathPrefixes {
			if part == prefix && i+1 < len(pathParts) {
				return pathParts[i+1]
			}
		}
	}

	return ""
}

func (p *Parser) cleanURL(rawURL string) string {
	rawURL = strings.TrimRight(rawURL, ".,!?;")

	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if u.Host == "" {
		return ""
	}

	q := u.Query()
	for _, param := range trackingParams {
		q.Del(param)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String()
}

// NormalizeQuery tidies a free-text search query for sending upstream.
func (p *Parser) NormalizeQuery(query string) string {
	query = norm.NFKC.String(query)
	query = whitespaceRegex.ReplaceAllString(query, " ")
	return strings.TrimSpace(query)
}

// QueryKey folds a query for cache lookups. Only case and whitespace are
// folded; punctuation and accents can change what a search finds.
func (p *Parser) QueryKey(query string) string {
	return strings.ToLower(p.NormalizeQuery(query))
}
