package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

const defaultUpstreamTimeout = 10 * time.Second

// ConfigError reports missing or invalid proxy configuration. Its message is
// safe to return to callers verbatim.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

// ProxyConfig holds the edge proxy configuration. It is parsed once at
// startup; request handling only ever reads it.
type ProxyConfig struct {
	// OriginEndpoint is the HTTPS base URL requests are forwarded to,
	// without a trailing slash.
	OriginEndpoint string
	// OriginHost is the host[:port] portion of OriginEndpoint.
	OriginHost string
	// AllowedDomains is the normalized Host allow-list. Empty means any
	// Host is forwarded.
	AllowedDomains []string
	Environment    string
	Port           string
	// UpstreamTimeout bounds a single forwarded request.
	UpstreamTimeout time.Duration
}

// LoadProxy builds the proxy configuration from the environment:
//
//	ORIGIN_ENDPOINT  required, must be an https:// URL
//	ALLOWED_DOMAINS  optional JSON array of hostnames
//	ENVIRONMENT      optional, defaults to "development"
//	PROXY_PORT       optional, defaults to "8081"
//	PROXY_TIMEOUT    optional Go duration, defaults to 10s
func LoadProxy() (*ProxyConfig, error) {
	cfg := &ProxyConfig{
		Environment:     "development",
		Port:            "8081",
		UpstreamTimeout: defaultUpstreamTimeout,
	}

	origin := strings.TrimSpace(os.Getenv("ORIGIN_ENDPOINT"))
	if origin == "" {
		return nil, &ConfigError{Message: "ORIGIN_ENDPOINT is required"}
	}
	if !strings.HasPrefix(origin, "https://") {
		return nil, &ConfigError{Message: "ORIGIN_ENDPOINT must be HTTPS"}
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil, &ConfigError{Message: "ORIGIN_ENDPOINT is not a valid URL"}
	}
	cfg.OriginEndpoint = strings.TrimSuffix(origin, "/")
	cfg.OriginHost = u.Host

	if raw := strings.TrimSpace(os.Getenv("ALLOWED_DOMAINS")); raw != "" {
		domains, err := parseAllowedDomains(raw)
		if err != nil {
			return nil, err
		}
		cfg.AllowedDomains = domains
	}

	if env := strings.TrimSpace(os.Getenv("ENVIRONMENT")); env != "" {
		cfg.Environment = env
	}
	if port := strings.TrimSpace(os.Getenv("PROXY_PORT")); port != "" {
		cfg.Port = port
	}
	if raw := strings.TrimSpace(os.Getenv("PROXY_TIMEOUT")); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			cfg.UpstreamTimeout = d
		}
	}

	return cfg, nil
}

// parseAllowedDomains decodes and normalizes the ALLOWED_DOMAINS JSON array.
// A malformed value is a configuration error, distinct from an absent or
// empty list.
func parseAllowedDomains(raw string) ([]string, error) {
	var entries []string
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, &ConfigError{Message: "ALLOWED_DOMAINS must be a JSON array of hostnames"}
	}

	domains := make([]string, 0, len(entries))
	for _, entry := range entries {
		host, err := SanitizeHostname(entry)
		if err != nil {
			return nil, &ConfigError{Message: fmt.Sprintf("ALLOWED_DOMAINS entry %q: %v", entry, err)}
		}
		domains = append(domains, host)
	}
	return domains, nil
}

// DomainAllowed reports whether the request Host may be forwarded. Ports are
// ignored and comparison is case-insensitive. An empty allow-list admits
// every Host.
func (c *ProxyConfig) DomainAllowed(host string) bool {
	if len(c.AllowedDomains) == 0 {
		return true
	}

	needle := strings.ToLower(strings.TrimSpace(host))
	needle = strings.TrimSuffix(needle, ".")
	if h, _, err := net.SplitHostPort(needle); err == nil {
		needle = h
	}
	if needle == "" {
		return false
	}

	for _, domain := range c.AllowedDomains {
		candidate := domain
		if h, _, err := net.SplitHostPort(candidate); err == nil {
			candidate = h
		}
		if candidate == needle {
			return true
		}
	}
	return false
}
