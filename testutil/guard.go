// Package testutil holds test helpers that keep the package layering intact:
// the domain model stays free of implementation packages and the filter
// engine stays free of any delivery layer.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const modulePath = "tapeview"

// AssertNoDirectImports parses every non-test .go file in dir and fails if an
// import path satisfies forbidden. Build tags are not evaluated.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports in %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

// ImportsUnder returns a predicate matching module packages below any of the
// given module-relative directories, e.g. "internal/adapters".
func ImportsUnder(dirs ...string) func(string) bool {
	prefixes := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		prefixes = append(prefixes, modulePath+"/"+strings.Trim(dir, "/"))
	}
	return func(path string) bool {
		for _, prefix := range prefixes {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
		return false
	}
}

// InternalImportForbidden matches any package of the module's internal tree.
func InternalImportForbidden(path string) bool {
	return ImportsUnder("internal")(path)
}

// DeliveryImportForbidden matches the packages that present live sets:
// HTTP adapters, plot rendering, and commands.
func DeliveryImportForbidden(path string) bool {
	return ImportsUnder("internal/adapters", "internal/render", "cmd")(path)
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
