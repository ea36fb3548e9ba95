package config

import (
	"fmt"
	"net/url"
	"strings"
)

// SanitizeHostname validates and normalizes a hostname value as found in
// allow-lists and tenant domain submissions. It returns the host (optionally
// with port) in lowercase, with any scheme and trailing dot removed.
// Paths, queries, fragments, wildcards, and empty values are rejected.
func SanitizeHostname(raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return "", fmt.Errorf("domain cannot be empty")
	}

	cleaned = strings.ToLower(cleaned)

	// Remove optional scheme prefix
	cleaned = strings.TrimPrefix(cleaned, "http://")
	cleaned = strings.TrimPrefix(cleaned, "https://")

	// Remove a single trailing slash (root path)
	cleaned = strings.TrimSuffix(cleaned, "/")

	// DNS answers and copy-pasted zone entries often carry a trailing dot.
	cleaned = strings.TrimSuffix(cleaned, ".")

	if strings.ContainsAny(cleaned, " \t\r\n") {
		return "", fmt.Errorf("domain cannot contain whitespace")
	}
	if strings.Contains(cleaned, "*") {
		return "", fmt.Errorf("wildcards are not allowed")
	}

	// Use url.Parse to validate host[:port] without allowing paths or queries.
	u, err := url.Parse("http://" + cleaned)
	if err != nil {
		return "", fmt.Errorf("invalid domain format")
	}

	if u.Host == "" || u.Path != "" || u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("domain must not include path, query, or fragment")
	}

	return u.Host, nil
}
