package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var batches = map[string]string{
	"Tier.json":      `[{"name":"free"},{"name":"pro"}]`,
	"Region.json":    `[{"code":"16","name":"Cuenca"}]`,
	"SubRegion.json": `[{"code":"1601","name":"Centro"}]`,
	"Account.json":   `[{"id":"a1","email":"owner@x.io","tierName":"pro"},{"id":"a2","email":"buyer@x.io"}]`,
	"Listing.json":   `[{"id":1,"slug":"casa","title":"Casa","ownerEmail":"owner@x.io","subRegionCode":"1601"},{"id":2,"slug":"x","title":"X","ownerEmail":"ghost@x.io","subRegionCode":"1601"}]`,
}

func snapshotDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range batches {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	cmd := newRootCmd(&stdout)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml"), "--log-level", "error"}, args...))
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestSeedCommandWritesArtifacts(t *testing.T) {
	out := t.TempDir()
	db := filepath.Join(out, "seed.db")
	reportPath := filepath.Join(out, "report.json")
	metricsPath := filepath.Join(out, "seed.prom")
	tracePath := filepath.Join(out, "trace.jsonl")

	stdout, err := execute(t,
		"--storage", "sqlite", "--sqlite-path", db,
		"--snapshot-dir", snapshotDir(t),
		"--concurrency", "2",
		"--report-json", reportPath,
		"--metrics-file", metricsPath,
		"--trace-json", tracePath,
	)
	if err != nil {
		t.Fatalf("seed: %v\n%s", err, stdout)
	}
	for _, want := range []string{
		"Tier: 2 loaded\n",
		"Listing: 1 loaded, 1 skipped, see errors\n",
		"Favorite: 0 loaded\n",
		"seed done in",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var report struct {
		Phase    string `json:"phase"`
		Entities []struct {
			Entity string `json:"entity"`
			Failed int    `json:"failed"`
		} `json:"entities"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Phase != "Done" || len(report.Entities) != 9 {
		t.Fatalf("unexpected report %s", data)
	}

	metrics, err := os.ReadFile(metricsPath)
	if err != nil || !strings.Contains(string(metrics), `estatehub_seed_records_total{entity="Listing",result="failed"} 1`) {
		t.Fatalf("metrics file: %v\n%s", err, metrics)
	}
	trace, err := os.ReadFile(tracePath)
	if err != nil || !strings.Contains(string(trace), `"operation":"seed.Wiping"`) {
		t.Fatalf("trace file: %v\n%s", err, trace)
	}

	stdout, err = execute(t, "--storage", "sqlite", "--sqlite-path", db, "tier", "owner@x.io")
	if err != nil || stdout != "pro\n" {
		t.Fatalf("tier owner = %q, %v", stdout, err)
	}
	stdout, err = execute(t, "--storage", "sqlite", "--sqlite-path", db, "tier", "buyer@x.io")
	if err != nil || stdout != "(none)\n" {
		t.Fatalf("tier buyer = %q, %v", stdout, err)
	}
	if _, err := execute(t, "--storage", "sqlite", "--sqlite-path", db, "tier", "ghost@x.io"); err == nil {
		t.Fatalf("unknown account should fail")
	}
}

func TestDryRunDoesNotOpenTarget(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing", "seed.db")
	stdout, err := execute(t, "--storage", "sqlite", "--sqlite-path", db, "--snapshot-dir", snapshotDir(t), "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(stdout, "seed done (dry run)") {
		t.Fatalf("stdout:\n%s", stdout)
	}
	if _, err := os.Stat(filepath.Dir(db)); !os.IsNotExist(err) {
		t.Fatalf("dry run touched the target: %v", err)
	}
}

func TestFatalConditionsFail(t *testing.T) {
	if _, err := execute(t, "--storage", "postgres"); err == nil {
		t.Fatalf("postgres without dsn should fail")
	}
	stdout, err := execute(t, "--storage", "memory", "--snapshot-dir", filepath.Join(t.TempDir(), "nope"))
	if err == nil || !strings.HasPrefix(err.Error(), "ConfigurationError") {
		t.Fatalf("missing snapshot dir should be a configuration error, got %v", err)
	}
	if !strings.Contains(stdout, "seed failed") {
		t.Fatalf("summary should report the failure:\n%s", stdout)
	}
	if _, err := execute(t, "unexpected-arg"); err == nil {
		t.Fatalf("positional arguments are rejected")
	}
}
