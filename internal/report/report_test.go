package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/nholik/backend-sentinel/internal/health"
	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

func sampleSummary() health.Summary {
	return health.Summary{
		Total:       3,
		Connected:   2,
		Timeout:     1,
		ByStatus:    map[probe.Status]int{probe.StatusConnected: 2, probe.StatusTimeout: 1},
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ByCategory: map[registry.Category]health.CategoryCounts{
			registry.CategoryVector:  {Total: 1, Connected: 1},
			registry.CategoryGraph:   {Total: 1, Connected: 1},
			registry.CategoryStorage: {Total: 1},
		},
		Details: []health.ServiceDetail{
			{
				Name: "chromadb", Service: "qdrant", Substituted: true,
				Category: registry.CategoryVector, Status: probe.StatusConnected,
				Message: "Connected successfully. Cluster status: disabled", Endpoint: "qdrant:6333",
				Elapsed: 120 * time.Millisecond, ElapsedMS: 120,
			},
			{
				Name: "neo4j", Service: "neo4j",
				Category: registry.CategoryGraph, Status: probe.StatusConnected,
				Message: "Connected successfully. Database is responsive.", Endpoint: "bolt://neo4j:7687",
			},
			{
				Name: "minio", Service: "minio",
				Category: registry.CategoryStorage, Status: probe.StatusTimeout,
				Message: "minio connection timed out after 2s", Endpoint: "minio:9000",
			},
		},
	}
}

func TestTextGroupsByCategory(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, sampleSummary(), Options{Details: true}); err != nil {
		t.Fatalf("Text error: %v", err)
	}
	out := buf.String()

	vector := strings.Index(out, "Vector Services:")
	graph := strings.Index(out, "Graph Services:")
	storage := strings.Index(out, "Storage Services:")
	if vector < 0 || graph < vector || storage < graph {
		t.Fatalf("categories missing or out of order:\n%s", out)
	}
	for _, want := range []string{
		"chromadb: Connected successfully. Cluster status: disabled (0.12s)",
		"via fallback qdrant",
		"@ bolt://neo4j:7687",
		"Summary: 2/3 services connected",
		"1 connections timed out",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "@ minio:9000") {
		t.Fatalf("endpoints are only shown for connected services:\n%s", out)
	}
}

func TestTextHidesEndpointsWithoutDetails(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, sampleSummary(), Options{}); err != nil {
		t.Fatalf("Text error: %v", err)
	}
	if strings.Contains(buf.String(), "@ ") {
		t.Fatalf("unexpected endpoint in output:\n%s", buf.String())
	}
}

func TestTextVerdict(t *testing.T) {
	required := []registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage}

	var buf bytes.Buffer
	if err := Text(&buf, sampleSummary(), Options{Required: required}); err != nil {
		t.Fatalf("Text error: %v", err)
	}
	if !strings.Contains(buf.String(), "Missing required categories: storage") {
		t.Fatalf("expected missing storage verdict:\n%s", buf.String())
	}

	buf.Reset()
	if err := Text(&buf, sampleSummary(), Options{Required: required[:2]}); err != nil {
		t.Fatalf("Text error: %v", err)
	}
	if !strings.Contains(buf.String(), "Backend connection checks passed.") {
		t.Fatalf("expected passing verdict:\n%s", buf.String())
	}
}

func TestTextEmptySummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Text(&buf, health.Summary{}, Options{}); err != nil {
		t.Fatalf("Text error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No connection checks have been run yet." {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := JSON(&buf, sampleSummary()); err != nil {
		t.Fatalf("JSON error: %v", err)
	}

	var decoded struct {
		Total      int `json:"total"`
		Connected  int `json:"connected"`
		ByCategory map[string]struct {
			Total     int `json:"total"`
			Connected int `json:"connected"`
		} `json:"by_category"`
		Details []struct {
			Name      string `json:"name"`
			Service   string `json:"service"`
			Status    string `json:"status"`
			ElapsedMS int64  `json:"elapsed_ms"`
		} `json:"details"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if decoded.Total != 3 || decoded.Connected != 2 {
		t.Fatalf("unexpected totals %+v", decoded)
	}
	if decoded.ByCategory["vector"].Connected != 1 {
		t.Fatalf("unexpected vector counts %+v", decoded.ByCategory)
	}
	if len(decoded.Details) != 3 || decoded.Details[0].Service != "qdrant" || decoded.Details[0].ElapsedMS != 120 {
		t.Fatalf("unexpected details %+v", decoded.Details)
	}
	if decoded.Details[2].Status != "timeout" {
		t.Fatalf("unexpected status %q", decoded.Details[2].Status)
	}
}
