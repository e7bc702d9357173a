package identity

import (
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"strconv"
	"strings"
	"testing"
)

// productionSources parses the non-test files of this package. Tests run
// with the package directory as working directory.
func productionSources(t *testing.T) (*token.FileSet, map[string]*ast.File) {
	t.Helper()
	entries, err := os.ReadDir(".")
	if err != nil {
		t.Fatalf("read package dir: %v", err)
	}
	fset := token.NewFileSet()
	files := make(map[string]*ast.File)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, name, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		files[name] = f
	}
	if len(files) == 0 {
		t.Fatal("no sources found")
	}
	return fset, files
}

func TestKeyMaterialNeverLeavesPackage(t *testing.T) {
	fset, files := productionSources(t)
	for name, f := range files {
		for _, decl := range f.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok {
				continue
			}
			switch fn.Name.Name {
			case "ExportPrivateKey", "PrivateKeyHex", "MasterKey":
				t.Errorf("%s:%d exports key material via %s", name, fset.Position(fn.Pos()).Line, fn.Name.Name)
			}
		}
	}
}

func TestDerivationHasNoIOImports(t *testing.T) {
	fset, files := productionSources(t)
	for name, f := range files {
		for _, imp := range f.Imports {
			path, _ := strconv.Unquote(imp.Path.Value)
			bad := path == "os" || path == "net" || path == "net/http" ||
				(strings.HasPrefix(path, "docregistry/go-backend/internal/") && path != "docregistry/go-backend/internal/crypto")
			if bad {
				t.Errorf("%s:%d imports %s", name, fset.Position(imp.Pos()).Line, path)
			}
		}
	}
}
