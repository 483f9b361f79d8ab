package health

import (
	"testing"
	"time"

	"github.com/nholik/backend-sentinel/internal/probe"
	"github.com/nholik/backend-sentinel/internal/registry"
)

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error {
	c.closed++
	return nil
}

func descriptor(name string, category registry.Category) *registry.Descriptor {
	return &registry.Descriptor{Name: name, Category: category, Host: "localhost", Port: 1}
}

func outcome(d *registry.Descriptor, status probe.Status) probe.Outcome {
	return probe.Outcome{Descriptor: d, Status: status, Message: d.Name + " " + string(status), Elapsed: 25 * time.Millisecond}
}

func TestSummarizeCounts(t *testing.T) {
	qdrant := descriptor("qdrant", registry.CategoryVector)
	neo := descriptor("neo4j", registry.CategoryGraph)
	minio := descriptor("minio", registry.CategoryStorage)
	redis := descriptor("redis", registry.CategoryCache)
	arango := descriptor("arangodb", registry.CategoryGraph)

	agg := NewAggregator()
	agg.SetOrder([]string{"chromadb", "neo4j", "minio", "redis", "qdrant", "arangodb"})
	agg.RecordAll(map[string]probe.Outcome{
		"chromadb": outcome(qdrant, probe.StatusConnected),
		"neo4j":    outcome(neo, probe.StatusError),
		"minio":    outcome(minio, probe.StatusTimeout),
		"redis":    outcome(redis, probe.StatusUnavailable),
		"qdrant":   outcome(qdrant, probe.StatusConnected),
		"arangodb": outcome(arango, probe.StatusDisconnected),
	})

	summary := agg.Summarize()
	if summary.Total != 6 {
		t.Fatalf("expected total 6, got %d", summary.Total)
	}
	if summary.Connected != 2 || summary.Failed != 1 || summary.Unavailable != 1 || summary.Timeout != 1 || summary.Disconnected != 1 {
		t.Fatalf("unexpected counts %+v", summary)
	}
	if sum := summary.Connected + summary.Failed + summary.Unavailable + summary.Timeout + summary.Disconnected; sum != summary.Total {
		t.Fatalf("counts do not add up: %d != %d", sum, summary.Total)
	}
	statusSum := 0
	for _, n := range summary.ByStatus {
		statusSum += n
	}
	if statusSum != summary.Total {
		t.Fatalf("by-status counts do not add up: %d", statusSum)
	}

	vector := summary.ByCategory[registry.CategoryVector]
	if vector.Total != 2 || vector.Connected != 2 || vector.Failed != 0 {
		t.Fatalf("unexpected vector counts %+v", vector)
	}
	graph := summary.ByCategory[registry.CategoryGraph]
	if graph.Total != 2 || graph.Connected != 0 || graph.Failed != 1 {
		t.Fatalf("unexpected graph counts %+v", graph)
	}

	if len(summary.Details) != 6 || summary.Details[0].Name != "chromadb" || summary.Details[5].Name != "arangodb" {
		t.Fatalf("details not in registry order: %+v", summary.Details)
	}
	first := summary.Details[0]
	if first.Service != "qdrant" || !first.Substituted {
		t.Fatalf("expected substituted detail, got %+v", first)
	}
	if first.ElapsedMS != 25 {
		t.Fatalf("expected 25ms, got %d", first.ElapsedMS)
	}
	if missing := summary.Missing([]registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage}); len(missing) != 2 {
		t.Fatalf("expected graph and storage missing, got %v", missing)
	}
}

func TestRecordAllOverwritesOnlyGivenNames(t *testing.T) {
	neo := descriptor("neo4j", registry.CategoryGraph)
	minio := descriptor("minio", registry.CategoryStorage)

	agg := NewAggregator()
	agg.RecordAll(map[string]probe.Outcome{
		"neo4j": outcome(neo, probe.StatusError),
		"minio": outcome(minio, probe.StatusConnected),
	})
	agg.RecordAll(map[string]probe.Outcome{
		"neo4j": outcome(neo, probe.StatusConnected),
	})

	outcomes := agg.Outcomes()
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if !outcomes["neo4j"].Connected() || !outcomes["minio"].Connected() {
		t.Fatalf("unexpected outcomes %+v", outcomes)
	}
}

func TestRecordAllDropsHandles(t *testing.T) {
	handle := &closeCounter{}
	minio := descriptor("minio", registry.CategoryStorage)
	o := outcome(minio, probe.StatusConnected)
	o.Handle = handle

	agg := NewAggregator()
	agg.RecordAll(map[string]probe.Outcome{"minio": o})

	if agg.Outcomes()["minio"].Handle != nil {
		t.Fatalf("aggregator must not retain handles")
	}
	if handle.closed != 0 {
		t.Fatalf("aggregator must not close handles")
	}
}

func TestFirstWorkingIsDeterministic(t *testing.T) {
	chroma := descriptor("chromadb", registry.CategoryVector)
	qdrant := descriptor("qdrant", registry.CategoryVector)
	weaviate := descriptor("weaviate", registry.CategoryVector)

	agg := NewAggregator()
	agg.SetOrder([]string{"chromadb", "qdrant", "weaviate"})
	fast := outcome(weaviate, probe.StatusConnected)
	fast.Elapsed = time.Millisecond
	agg.RecordAll(map[string]probe.Outcome{
		"chromadb": outcome(chroma, probe.StatusError),
		"qdrant":   outcome(qdrant, probe.StatusConnected),
		"weaviate": fast,
	})

	for i := 0; i < 20; i++ {
		got, ok := agg.FirstWorking(registry.CategoryVector)
		if !ok || got.Service() != "qdrant" {
			t.Fatalf("iteration %d: expected qdrant, got %q (%v)", i, got.Service(), ok)
		}
	}

	if _, ok := agg.FirstWorking(registry.CategoryGraph); ok {
		t.Fatalf("expected no working graph service")
	}
	if working := agg.Working(registry.CategoryVector); len(working) != 2 {
		t.Fatalf("expected 2 working vector services, got %d", len(working))
	}
	if working := agg.Working(""); len(working) != 2 {
		t.Fatalf("expected 2 working services, got %d", len(working))
	}
}

func TestRequiredCategoriesSatisfied(t *testing.T) {
	required := []registry.Category{registry.CategoryVector, registry.CategoryGraph, registry.CategoryStorage}

	cases := []struct {
		name     string
		outcomes map[string]probe.Outcome
		want     bool
	}{
		{
			name: "all present",
			outcomes: map[string]probe.Outcome{
				"v": outcome(descriptor("v", registry.CategoryVector), probe.StatusConnected),
				"g": outcome(descriptor("g", registry.CategoryGraph), probe.StatusConnected),
				"o": outcome(descriptor("o", registry.CategoryStorage), probe.StatusConnected),
			},
			want: true,
		},
		{
			name: "storage timed out",
			outcomes: map[string]probe.Outcome{
				"v": outcome(descriptor("v", registry.CategoryVector), probe.StatusConnected),
				"g": outcome(descriptor("g", registry.CategoryGraph), probe.StatusConnected),
				"o": outcome(descriptor("o", registry.CategoryStorage), probe.StatusTimeout),
			},
			want: false,
		},
		{
			name: "cache is not required",
			outcomes: map[string]probe.Outcome{
				"v": outcome(descriptor("v", registry.CategoryVector), probe.StatusConnected),
				"g": outcome(descriptor("g", registry.CategoryGraph), probe.StatusConnected),
				"o": outcome(descriptor("o", registry.CategoryStorage), probe.StatusConnected),
				"c": outcome(descriptor("c", registry.CategoryCache), probe.StatusError),
			},
			want: true,
		},
		{
			name:     "nothing recorded",
			outcomes: map[string]probe.Outcome{},
			want:     false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator()
			agg.RecordAll(tc.outcomes)
			if got := agg.RequiredCategoriesSatisfied(required); got != tc.want {
				t.Fatalf("RequiredCategoriesSatisfied() = %v, want %v", got, tc.want)
			}
		})
	}

	if !NewAggregator().RequiredCategoriesSatisfied(nil) {
		t.Fatalf("an empty requirement is always satisfied")
	}
}

func TestRetainDropsOrphans(t *testing.T) {
	agg := NewAggregator()
	agg.RecordAll(map[string]probe.Outcome{
		"old": outcome(descriptor("old", registry.CategoryVector), probe.StatusConnected),
		"new": outcome(descriptor("new", registry.CategoryVector), probe.StatusConnected),
	})

	agg.Retain([]string{"new"})

	if agg.Len() != 1 {
		t.Fatalf("expected 1 outcome, got %d", agg.Len())
	}
	if _, ok := agg.Summarize().Detail("old"); ok {
		t.Fatalf("expected old outcome to be dropped")
	}
}

func TestUnorderedNamesSortAfterOrder(t *testing.T) {
	agg := NewAggregator()
	agg.SetOrder([]string{"b"})
	agg.RecordAll(map[string]probe.Outcome{
		"z": outcome(descriptor("z", registry.CategoryCache), probe.StatusConnected),
		"a": outcome(descriptor("a", registry.CategoryCache), probe.StatusConnected),
		"b": outcome(descriptor("b", registry.CategoryCache), probe.StatusConnected),
	})

	details := agg.Summarize().Details
	if details[0].Name != "b" || details[1].Name != "a" || details[2].Name != "z" {
		t.Fatalf("unexpected order: %s %s %s", details[0].Name, details[1].Name, details[2].Name)
	}
}
