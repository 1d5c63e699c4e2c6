package ratelimit

import (
	"strings"
)

// MatchEndpoint resolves the endpoint configuration for a path and method.
// Returns nil when no configuration matches, in which case the caller
// falls back to the global default. Config paths ending in "/" match by
// prefix.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// Health checks and the chat socket upgrade are never limited.
	if method == "GET" && (path == "/health" || path == "/ws") {
		return &EndpointConfig{}
	}

	for i := range configs {
		c := &configs[i]
		if c.Path == path && c.Method == method {
			return c
		}
	}

	for i := range configs {
		c := &configs[i]
		if c.Method == method && strings.HasSuffix(c.Path, "/") && strings.HasPrefix(path, c.Path) {
			return c
		}
	}

	return nil
}
