package testutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred ImportPredicate
		in   string
		want bool
	}{
		{"stdlib", ThirdParty, "net/http", false},
		{"module", ThirdParty, "github.com/google/uuid", true},
		{"golang.org", ThirdParty, "golang.org/x/crypto/bcrypt", true},
		{"internal", ModuleInternal, "vaxtrax/internal/core", true},
		{"pkg", ModuleInternal, "vaxtrax/pkg/domain", false},
		{"allowed", ModuleExcept("vaxtrax/pkg/domain"), "vaxtrax/pkg/domain", false},
		{"other module pkg", ModuleExcept("vaxtrax/pkg/domain"), "vaxtrax/internal/audit", true},
		{"foreign", ModuleExcept(), "vaxtraxx/thing", false},
		{"any", Any(ThirdParty, ModuleInternal), "vaxtrax/internal/seed", true},
		{"any none", Any(ThirdParty, ModuleInternal), "time", false},
	}
	for _, tc := range cases {
		if got := tc.pred(tc.in); got != tc.want {
			t.Errorf("%s: pred(%q) = %v, want %v", tc.name, tc.in, got, tc.want)
		}
	}
}

func writeFile(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\nimport (\n\t\"fmt\"\n\t\"vaxtrax/internal/core\"\n)\nvar _ = fmt.Sprint\nvar _ core.Batch\n")
	writeFile(t, dir, "a_test.go", "package a\nimport \"github.com/google/uuid\"\nvar _ = uuid.New\n")
	viols, err := directImportViolations(dir, Any(ThirdParty, ModuleInternal))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "vaxtrax/internal/core (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}
	if _, err := directImportViolations(filepath.Join(dir, "missing"), ThirdParty); err == nil {
		t.Fatalf("expected error for missing dir")
	}
	writeFile(t, dir, "broken.go", "package a\nimport (\n")
	if _, err := directImportViolations(dir, ThirdParty); err == nil {
		t.Fatalf("expected parse error")
	}
}

type recordingTB struct {
	testing.TB
	fatal string
}

func (r *recordingTB) Helper() {}
func (r *recordingTB) Fatalf(format string, _ ...any) {
	r.fatal = format
}

func TestAssertNoTransitiveDependency(t *testing.T) {
	prev := goListDeps
	t.Cleanup(func() { goListDeps = prev })

	goListDeps = func(string) ([]byte, error) { return []byte("fmt\nvaxtrax/pkg/domain\n"), nil }
	ok := &recordingTB{TB: t}
	AssertNoTransitiveDependency(ok, "./...", ModuleInternal, "domain purity")
	if ok.fatal != "" {
		t.Fatalf("unexpected failure %q", ok.fatal)
	}

	goListDeps = func(string) ([]byte, error) { return []byte("vaxtrax/internal/core\n"), nil }
	bad := &recordingTB{TB: t}
	AssertNoTransitiveDependency(bad, "./...", ModuleInternal, "domain purity")
	if bad.fatal == "" {
		t.Fatalf("expected violation to fail")
	}

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit 1") }
	failed := &recordingTB{TB: t}
	AssertNoTransitiveDependency(failed, "./...", ModuleInternal, "domain purity")
	if failed.fatal == "" {
		t.Fatalf("expected go list failure to fail")
	}
}
