package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"estatehub/internal/seed"
	"estatehub/pkg/domain"
)

func counterValue(t *testing.T, r *PrometheusRecorder, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	r.RecordOutcome(seed.LoadOutcome{
		Entity: domain.EntityListing, Attempted: 3, Succeeded: 2, Failed: 1,
		ByKind: map[string]int{"UnresolvedReference": 1},
	})
	r.RecordOutcome(seed.LoadOutcome{Entity: "Office", Succeeded: 2, Patched: 1})
	r.RecordRegistry(domain.EntityListing, 4)
	r.ObservePhase(seed.PhaseLoading, domain.EntityListing, 20*time.Millisecond)

	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"estatehub_seed_records_total", map[string]string{"entity": "Listing", "result": ResultSucceeded}, 2},
		{"estatehub_seed_records_total", map[string]string{"entity": "Listing", "result": ResultFailed}, 1},
		{"estatehub_seed_records_total", map[string]string{"entity": "Office", "result": ResultPatched}, 1},
		{"estatehub_seed_failures_total", map[string]string{"entity": "Listing", "kind": "UnresolvedReference"}, 1},
		{"estatehub_seed_registry_source_keys", map[string]string{"entity": "Listing"}, 4},
		{"estatehub_seed_phase_duration_seconds", map[string]string{"phase": "Loading", "entity": "Listing"}, 1},
	}
	for _, c := range checks {
		if got := counterValue(t, r, c.name, c.labels); got != c.want {
			t.Fatalf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `estatehub_seed_records_total{entity="Listing",result="succeeded"} 2`) {
		t.Fatalf("handler output missing counter:\n%s", rec.Body.String())
	}

	path := filepath.Join(t.TempDir(), "seed.prom")
	if err := r.WriteToTextfile(path); err != nil {
		t.Fatalf("WriteToTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "# TYPE estatehub_seed_phase_duration_seconds histogram") {
		t.Fatalf("textfile missing histogram:\n%s", data)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	_, span := tracer.Start(context.Background(), "seed.Loading.Tier")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "seed.Wiping")
	span.End(fmt.Errorf("delete tiers: %w", seed.ErrConnectivity))

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[0].Kind != "" {
		t.Fatalf("unexpected success entry %+v", entries[0])
	}
	if entries[1].Status != "error" || entries[1].Kind != "ConnectivityError" {
		t.Fatalf("unexpected error entry %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %q", buf.String())
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil || decoded.Operation != "seed.Wiping" {
		t.Fatalf("decode line: %v %+v", err, decoded)
	}
}
