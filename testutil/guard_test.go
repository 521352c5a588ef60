package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(string) bool
		in   string
		want bool
	}{
		{"internal", InternalImportForbidden, "cpgcore/internal/core", true},
		{"internal pkg", InternalImportForbidden, "cpgcore/pkg/domain", false},
		{"infra", InfraImportForbidden, "cpgcore/internal/infra/blob/s3", true},
		{"infra facade", InfraImportForbidden, "cpgcore/internal/blob", false},
		{"cobra", SurfaceImportForbidden, "github.com/spf13/cobra", true},
		{"viper", SurfaceImportForbidden, "github.com/spf13/viper", true},
		{"cast", SurfaceImportForbidden, "github.com/spf13/cast", false},
		{"any of", AnyOf(InfraImportForbidden, SurfaceImportForbidden), "github.com/spf13/pflag", true},
		{"any of none", AnyOf(), "fmt", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pred(tc.in); got != tc.want {
				t.Fatalf("predicate(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

type recorder struct{ msg string }

func (r *recorder) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func writeSource(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"cpgcore/internal/infra/blob/fs\"\n)\nvar _ = fmt.Sprint\nvar _ = fs.New\n")
	writeSource(t, dir, "a_test.go", "package tmp\nimport \"github.com/spf13/cobra\"\nvar _ cobra.Command\n")
	writeSource(t, dir, "notes.txt", "import \"github.com/spf13/viper\"")

	viols, err := directImportViolations(dir, AnyOf(InfraImportForbidden, SurfaceImportForbidden))
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "cpgcore/internal/infra/blob/fs (in a.go)" {
		t.Fatalf("unexpected violations %v", viols)
	}

	var r recorder
	failIfViolations(&r, "forbidden direct imports detected", "core stays storage agnostic", viols)
	if !strings.Contains(r.msg, "core stays storage agnostic") || !strings.Contains(r.msg, "a.go") {
		t.Fatalf("unexpected failure message %q", r.msg)
	}
}

func TestDirectImportViolationsMissingDir(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InfraImportForbidden); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "x.go", "package tmp\nimport \"fmt\"\nfunc X() { fmt.Println(1) }\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	t.Cleanup(func() { goListDeps = orig })

	goListDeps = func(string) ([]byte, error) {
		return []byte("fmt\ncpgcore/pkg/domain\n\ngithub.com/spf13/viper\n"), nil
	}
	viols, _, err := transitiveDependencyViolations("./...", SurfaceImportForbidden)
	if err != nil || len(viols) != 1 || viols[0] != "github.com/spf13/viper" {
		t.Fatalf("got %v, %v", viols, err)
	}
	AssertNoTransitiveDependency(t, "./...", InternalImportForbidden, "none")

	goListDeps = func(string) ([]byte, error) { return []byte("boom"), errors.New("exit status 1") }
	if _, out, err := transitiveDependencyViolations("./...", SurfaceImportForbidden); err == nil || string(out) != "boom" {
		t.Fatalf("expected go list failure, got %q %v", out, err)
	}
}
