package backends

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
)

var errWeaviateNotReady = errors.New("weaviate is not ready")

// Weaviate calls the readiness endpoint through the official client.
type Weaviate struct{}

// NewWeaviate returns the weaviate capability.
func NewWeaviate() *Weaviate {
	return &Weaviate{}
}

// WeaviateHandle carries the verified client.
type WeaviateHandle struct {
	Client    *weaviate.Client
	ClassName string
}

// Close implements io.Closer.
func (h *WeaviateHandle) Close() error {
	return nil
}

// Probe implements probe.Prober.
func (w *Weaviate) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	cfg := weaviate.Config{
		Host:             weaviateHost(d),
		Scheme:           weaviateScheme(d),
		ConnectionClient: &http.Client{Timeout: clientTimeout(d)},
	}
	if d.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: d.APIKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return probe.Conn{}, fmt.Errorf("create weaviate client: %w", err)
	}

	ready, err := client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return probe.Conn{}, fmt.Errorf("readiness check: %w", err)
	}
	if !ready {
		return probe.Conn{}, errWeaviateNotReady
	}

	return probe.Conn{
		Detail: "Connected successfully. Weaviate is ready.",
		Handle: &WeaviateHandle{Client: client, ClassName: d.ExtraValue("class_name", "")},
	}, nil
}

func weaviateHost(d *registry.Descriptor) string {
	if u, err := url.Parse(d.URI); err == nil && u.Host != "" {
		return u.Host
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

func weaviateScheme(d *registry.Descriptor) string {
	if u, err := url.Parse(d.URI); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return u.Scheme
	}
	return schemeFor(d)
}
