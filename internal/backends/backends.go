// Package backends implements the reachability probes registered with the
// probe dispatcher, one per backend family.
package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/rs/zerolog"
)

const httpErrorBodyLimit = 1024

// Default returns a capability for every backend family this module can
// reach. Families left out are reported as unavailable by the dispatcher.
func Default(logger zerolog.Logger) map[registry.Backend]probe.Prober {
	client := newHTTPClient()
	return map[registry.Backend]probe.Prober{
		registry.BackendChroma:   NewChroma(client),
		registry.BackendQdrant:   NewQdrant(client),
		registry.BackendNeo4j:    NewNeo4j(client),
		registry.BackendArangoDB: NewArangoDB(client),
		registry.BackendWeaviate: NewWeaviate(),
		registry.BackendMinIO:    NewS3(logger),
		registry.BackendRedis:    NewRedis(),
	}
}

// newHTTPClient builds a client that never retries on its own; retries are
// owned by the dispatcher's per-descriptor policy.
func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{}
	return client
}

// baseURL returns the descriptor URI when it is an http(s) URL, otherwise
// a URL built from host and port.
func baseURL(d *registry.Descriptor) string {
	if u, err := url.Parse(d.URI); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return strings.TrimRight(d.URI, "/")
	}
	// Bare endpoints such as MinIO's "minio:9000" take the descriptor scheme.
	if !strings.Contains(d.URI, "://") {
		if _, _, err := net.SplitHostPort(d.URI); err == nil {
			return schemeFor(d) + "://" + d.URI
		}
	}
	return schemeFor(d) + "://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func schemeFor(d *registry.Descriptor) string {
	if d.Secure {
		return "https"
	}
	return "http"
}

type httpRequest struct {
	method  string
	url     string
	body    any
	headers map[string]string
	user    string
	pass    string
}

// doJSON sends req and decodes a 2xx JSON response into out.
func doJSON(ctx context.Context, client *retryablehttp.Client, req httpRequest, out any) error {
	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = strings.NewReader(string(payload))
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.method, req.url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range req.headers {
		httpReq.Header.Set(key, value)
	}
	if req.user != "" {
		httpReq.SetBasicAuth(req.user, req.pass)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, httpErrorBodyLimit))
		if bodyText := strings.TrimSpace(string(text)); bodyText != "" {
			return fmt.Errorf("unexpected status %s (%s)", resp.Status, bodyText)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// clientTimeout bounds a single client operation when the descriptor
// carries a timeout; the dispatcher's context still bounds the whole probe.
func clientTimeout(d *registry.Descriptor) time.Duration {
	if d.Timeout > 0 {
		return d.Timeout
	}
	return 30 * time.Second
}
