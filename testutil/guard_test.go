package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordingFatal struct{ msg string }

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "estatehub/internal/seed", true},
		{"internal", InternalImportForbidden, "estatehub/pkg/domain", false},
		{"internal", InternalImportForbidden, "example.com/internal", false},
		{"infra", InfraImportForbidden, "estatehub/internal/infra/persistence/sqlite", true},
		{"infra", InfraImportForbidden, "estatehub/internal/infra", true},
		{"infra", InfraImportForbidden, "estatehub/internal/snapshot", false},
		{"driver", DriverImportForbidden, "modernc.org/sqlite", true},
		{"driver", DriverImportForbidden, "github.com/jackc/pgx/v5/stdlib", true},
		{"driver", DriverImportForbidden, "github.com/aws/aws-sdk-go-v2/service/s3", true},
		{"driver", DriverImportForbidden, "estatehub/internal/infra/snapshot/s3", true},
		{"driver", DriverImportForbidden, "modernc.org/sqlitex", false},
		{"driver", DriverImportForbidden, "go.uber.org/zap", false},
		{"driver", DriverImportForbidden, "", false},
	}
	for _, c := range cases {
		if got := c.pred(c.in); got != c.want {
			t.Errorf("%s(%q) = %v, want %v", c.name, c.in, got, c.want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "store.go", "package tmp\nimport (\n\t\"fmt\"\n\tdb \"modernc.org/sqlite\"\n)\nvar _ = fmt.Sprint\nvar _ db.Driver\n")
	writeGo(t, dir, "store_test.go", "package tmp\nimport \"github.com/jackc/pgx/v5\"\n")
	writeGo(t, dir, "notes.txt", "import \"modernc.org/sqlite\"")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeGo(t, filepath.Join(dir, "sub"), "sub.go", "package sub\nimport _ \"github.com/aws/aws-sdk-go-v2/aws\"\n")

	viols, err := directImportViolations(dir, DriverImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite (in store.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsParseError(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package tmp\nimport (\n")
	if _, err := directImportViolations(dir, DriverImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), DriverImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "package tmp\nimport \"context\"\nvar _ = context.Background\n")
	AssertNoDirectImports(t, dir, DriverImportForbidden, "no drivers")
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("context\n\nestatehub/pkg/domain\nmodernc.org/sqlite\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", DriverImportForbidden)
	if err != nil {
		t.Fatalf("transitiveDependencyViolations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "modernc.org/sqlite" {
		t.Fatalf("unexpected violations %v", viols)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("no go files"), errors.New("exit status 1") }
	if _, out, err := transitiveDependencyViolations(".", DriverImportForbidden); err == nil || string(out) != "no go files" {
		t.Fatalf("expected go list failure, got out=%q err=%v", out, err)
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "direct imports", "layering", nil)
	if rec.msg != "" {
		t.Fatalf("no violations should not fail: %q", rec.msg)
	}
	failIfViolations(rec, "direct imports", "layering", []string{"a", "b"})
	if !strings.Contains(rec.msg, "forbidden direct imports detected (layering):\na\nb") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}
