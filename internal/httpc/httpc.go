// Package httpc builds the resty client used to fetch remote seed documents.
package httpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/loykin/docmigrate/internal/constants"
)

type Httpc struct {
	TlsConfig *tls.Config
	Timeout   time.Duration
	// MinTLS is "1.0" through "1.3"; empty means TLS 1.2.
	MinTLS   string
	Insecure bool
}

// New returns a resty.Client configured from the receiver.
func (h *Httpc) New() *resty.Client {
	c := resty.New()
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultSeedHTTPTimeout
	}
	c.SetTimeout(timeout)

	cfg := h.TlsConfig
	if cfg == nil && (h.Insecure || h.MinTLS != "") {
		cfg = &tls.Config{}
	}
	if cfg == nil {
		return c
	}
	if v := parseTLSVersion(h.MinTLS); v != 0 {
		cfg.MinVersion = v
	}
	if cfg.MinVersion == 0 {
		cfg.MinVersion = tls.VersionTLS12
	}
	if h.Insecure {
		cfg.InsecureSkipVerify = true // #nosec G402 -- opt-in for self-signed seed hosts
	}
	c.SetTLSClientConfig(cfg)
	return c
}

// Fetch GETs url and returns the body. Non-2xx responses are errors.
func (h *Httpc) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := h.New().R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode())
	}
	return resp.Body(), nil
}

func parseTLSVersion(s string) uint16 {
	v := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "tls")
	switch strings.TrimPrefix(v, "v") {
	case "1.0", "10":
		return tls.VersionTLS10
	case "1.1", "11":
		return tls.VersionTLS11
	case "1.2", "12":
		return tls.VersionTLS12
	case "1.3", "13":
		return tls.VersionTLS13
	default:
		return 0
	}
}
