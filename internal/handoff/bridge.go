package handoff

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// BridgePayload is the short-lived blob a web login leaves in the well-known
// browser storage slot. It is consumed on first read.
type BridgePayload struct {
	Token         string `json:"token"`
	WorkspaceID   string `json:"workspaceId"`
	ProjectID     string `json:"projectId"`
	ProjectAESKey string `json:"projectAesKey,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

// Browser is the surface the poller inspects: the active tab's URL and the
// bridge storage slot. TakeBridgePayload must read and delete atomically so a
// payload is handed over exactly once; it returns common.ErrNotFound when the
// slot is empty and common.ErrBridgeUnavailable when the page cannot be
// reached at all.
type Browser interface {
	ActiveTabURL(ctx context.Context) (string, error)
	TakeBridgePayload(ctx context.Context) (string, error)
}

// Pages the bridge slot must never be probed on. Privileged browser surfaces
// reject script injection, and probing them only produces console noise.
var restrictedSchemes = []string{
	"chrome:", "chrome-extension:", "moz-extension:", "about:", "edge:", "opera:",
}

// Hosts the web login is expected to live on.
var allowedHostMarkers = []string{"zecrypt", "localhost"}

// eligibleURL reports whether the bridge slot may be probed on the page at
// rawURL: an http(s) page on a known login host.
func eligibleURL(rawURL string) bool {
	if rawURL == "" {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, scheme := range restrictedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, marker := range allowedHostMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

// parseBridgePayload decodes the raw slot value, rejecting payloads without a
// token.
func parseBridgePayload(raw string) (*BridgePayload, error) {
	var p BridgePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("bridge payload decode: %w", err)
	}
	if p.Token == "" {
		return nil, fmt.Errorf("bridge payload has no token")
	}
	return &p, nil
}
