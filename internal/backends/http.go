package backends

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

const (
	chromaCollectionsV1 = "/api/v1/collections"
	chromaCollectionsV2 = "/api/v2/tenants/default_tenant/databases/default_database/collections"
	defaultNeo4jHTTP    = 7474
	defaultNeo4jDB      = "neo4j"
	defaultArangoDB     = "_system"
)

// Chroma lists collections over the REST API.
type Chroma struct {
	client *retryablehttp.Client
}

// NewChroma returns the chromadb capability.
func NewChroma(client *retryablehttp.Client) *Chroma {
	return &Chroma{client: client}
}

// Probe implements probe.Prober.
func (c *Chroma) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	path := chromaCollectionsV1
	if d.ExtraValue("api_version", "v1") == "v2" {
		path = chromaCollectionsV2
	}

	var collections []map[string]any
	req := httpRequest{method: http.MethodGet, url: baseURL(d) + path}
	if d.APIKey != "" {
		req.headers = map[string]string{"X-Chroma-Token": d.APIKey}
	}
	if err := doJSON(ctx, c.client, req, &collections); err != nil {
		return probe.Conn{}, err
	}
	return probe.Conn{Detail: fmt.Sprintf("Connected successfully. Found %d collections.", len(collections))}, nil
}

// Qdrant reads the cluster status.
type Qdrant struct {
	client *retryablehttp.Client
}

// NewQdrant returns the qdrant capability.
func NewQdrant(client *retryablehttp.Client) *Qdrant {
	return &Qdrant{client: client}
}

type qdrantClusterResponse struct {
	Result struct {
		Status string `json:"status"`
	} `json:"result"`
	Status string `json:"status"`
}

// Probe implements probe.Prober.
func (q *Qdrant) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	var resp qdrantClusterResponse
	req := httpRequest{method: http.MethodGet, url: baseURL(d) + "/cluster"}
	if d.APIKey != "" {
		req.headers = map[string]string{"api-key": d.APIKey}
	}
	if err := doJSON(ctx, q.client, req, &resp); err != nil {
		return probe.Conn{}, err
	}
	if resp.Status != "" && resp.Status != "ok" {
		return probe.Conn{}, fmt.Errorf("qdrant returned status %q", resp.Status)
	}
	return probe.Conn{Detail: fmt.Sprintf("Connected successfully. Cluster status: %s", resp.Result.Status)}, nil
}

// Neo4j runs RETURN 1 through the transactional HTTP endpoint.
type Neo4j struct {
	client *retryablehttp.Client
}

// NewNeo4j returns the neo4j capability.
func NewNeo4j(client *retryablehttp.Client) *Neo4j {
	return &Neo4j{client: client}
}

type neo4jStatement struct {
	Statement string `json:"statement"`
}

type neo4jCommitRequest struct {
	Statements []neo4jStatement `json:"statements"`
}

type neo4jCommitResponse struct {
	Results []struct {
		Data []struct {
			Row []any `json:"row"`
		} `json:"data"`
	} `json:"results"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Probe implements probe.Prober.
func (n *Neo4j) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	database := d.Database
	if database == "" {
		database = defaultNeo4jDB
	}

	var resp neo4jCommitResponse
	req := httpRequest{
		method: http.MethodPost,
		url:    neo4jHTTPBase(d) + "/db/" + url.PathEscape(database) + "/tx/commit",
		body:   neo4jCommitRequest{Statements: []neo4jStatement{{Statement: "RETURN 1 AS test"}}},
		user:   d.Username,
		pass:   d.Password,
	}
	if err := doJSON(ctx, n.client, req, &resp); err != nil {
		return probe.Conn{}, err
	}
	if len(resp.Errors) > 0 {
		return probe.Conn{}, fmt.Errorf("%s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Results) == 0 || len(resp.Results[0].Data) == 0 {
		return probe.Conn{}, errors.New("test query returned no rows")
	}
	return probe.Conn{Detail: "Connected successfully. Database is responsive."}, nil
}

// neo4jHTTPBase maps a bolt URI onto the HTTP connector of the same host.
// Extra "http_url" overrides it.
func neo4jHTTPBase(d *registry.Descriptor) string {
	if override := d.ExtraValue("http_url", ""); override != "" {
		return override
	}
	host := d.Host
	if u, err := url.Parse(d.URI); err == nil && u.Hostname() != "" {
		if u.Scheme == "http" || u.Scheme == "https" {
			return baseURL(d)
		}
		host = u.Hostname()
	}
	if host == "" {
		host = "localhost"
	}
	port, err := strconv.Atoi(d.ExtraValue("http_port", ""))
	if err != nil || port <= 0 {
		port = defaultNeo4jHTTP
	}
	return schemeFor(d) + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ArangoDB reads the server version of the configured database.
type ArangoDB struct {
	client *retryablehttp.Client
}

// NewArangoDB returns the arangodb capability.
func NewArangoDB(client *retryablehttp.Client) *ArangoDB {
	return &ArangoDB{client: client}
}

type arangoVersionResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// Probe implements probe.Prober.
func (a *ArangoDB) Probe(ctx context.Context, d *registry.Descriptor) (probe.Conn, error) {
	database := d.Database
	if database == "" {
		database = defaultArangoDB
	}

	var resp arangoVersionResponse
	req := httpRequest{
		method: http.MethodGet,
		url:    baseURL(d) + "/_db/" + url.PathEscape(database) + "/_api/version",
		user:   d.Username,
		pass:   d.Password,
	}
	if err := doJSON(ctx, a.client, req, &resp); err != nil {
		return probe.Conn{}, err
	}
	if resp.Version == "" {
		return probe.Conn{}, errors.New("version missing from response")
	}
	return probe.Conn{Detail: fmt.Sprintf("Connected successfully. ArangoDB version: %s", resp.Version)}, nil
}
