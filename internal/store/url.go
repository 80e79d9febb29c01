package store

import (
	"net/url"
	"strings"
)

// NormalizeURL turns user input into the absolute URL that gets stored.
// Input not starting with "http" is treated as a bare host and given an
// https:// scheme.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}

	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrInvalidURL
	}

	return raw, nil
}
