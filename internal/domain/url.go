package domain

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the store key for raw.
//
// Scheme and host are lowercased, fragments and default ports dropped and
// a bare "/" path removed. Input that does not parse as an absolute URL is
// returned trimmed, so every string has a key.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	switch {
	case u.Scheme == "http" && u.Port() == "80":
		u.Host = u.Hostname()
	case u.Scheme == "https" && u.Port() == "443":
		u.Host = u.Hostname()
	}

	if u.Path == "/" && u.RawQuery == "" {
		u.Path = ""
		u.RawPath = ""
	}

	return u.String()
}

// Host extracts the lowercase hostname of raw. Scheme-less input such as
// "example.com/path" is accepted. Returns "" when no host can be derived.
func Host(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
