package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
)

// wellKnownImports maps a package selector (the identifier before the
// dot) to its import path, used to synthesize MissingImport diagnostics
// for references the fragment author forgot to import: insert a using
// directive derived from a fixed table of well-known symbol->namespace
// mappings.
var wellKnownImports = map[string]string{
	"fmt":     "fmt",
	"errors":  "errors",
	"strings": "strings",
	"context": "context",
	"time":    "time",
	"sync":    "sync",
	"os":      "os",
	"io":      "io",
	"bytes":   "bytes",
	"sort":    "sort",
	"json":    "encoding/json",
	"strconv": "strconv",
	"uuid":    "github.com/google/uuid",
}

// DefaultFrontend analyzes Go source structurally: syntax errors from
// go/parser, duplicate top-level declarations within the compile unit
// (the concatenation of fragment, stubs, and dependency extracts), and
// unqualified references to well-known packages missing their import.
type DefaultFrontend struct{}

func NewDefaultFrontend() *DefaultFrontend { return &DefaultFrontend{} }

func (d *DefaultFrontend) Compile(files []SourceFile) (Result, error) {
	fset := token.NewFileSet()
	var diags []Diagnostic
	declaredAt := make(map[string][]string) // name -> files declaring it

	parsed := make(map[string]*ast.File)
	for _, f := range files {
		file, err := parser.ParseFile(fset, f.Name, f.Content, parser.AllErrors)
		if err != nil {
			diags = append(diags, syntaxDiagnostics(f.Name, err)...)
			continue
		}
		parsed[f.Name] = file

		importedPkgs := importedPackageNames(file)

		for _, decl := range file.Decls {
			for _, name := range topLevelNames(decl) {
				declaredAt[name] = append(declaredAt[name], f.Name)
			}
		}

		ast.Inspect(file, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			ident, ok := sel.X.(*ast.Ident)
			if !ok {
				return true
			}
			path, known := wellKnownImports[ident.Name]
			if !known || importedPkgs[ident.Name] {
				return true
			}
			diags = append(diags, Diagnostic{
				ID:       idMissingImport,
				Severity: SeverityError,
				Message:  fmt.Sprintf("missing import %q for %s.%s", path, ident.Name, sel.Sel.Name),
				File:     f.Name,
				Line:     fset.Position(sel.Pos()).Line,
			})
			return true
		})
	}

	for name, owners := range declaredAt {
		if len(owners) < 2 {
			continue
		}
		for _, owner := range owners[1:] {
			diags = append(diags, Diagnostic{
				ID:       idSymbolCollision,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s is declared more than once across the compile unit", name),
				File:     owner,
			})
		}
	}

	ok := true
	for _, dd := range diags {
		if dd.Severity == SeverityError {
			ok = false
			break
		}
	}
	return Result{OK: ok, Diagnostics: diags}, nil
}

func syntaxDiagnostics(file string, err error) []Diagnostic {
	var diags []Diagnostic
	if list, ok := err.(scanner.ErrorList); ok {
		for _, e := range list {
			diags = append(diags, Diagnostic{
				ID:       idSyntaxError,
				Severity: SeverityError,
				Message:  e.Msg,
				File:     file,
				Line:     e.Pos.Line,
			})
		}
		return diags
	}
	return []Diagnostic{{ID: idSyntaxError, Severity: SeverityError, Message: err.Error(), File: file}}
}

func importedPackageNames(file *ast.File) map[string]bool {
	out := make(map[string]bool)
	for _, imp := range file.Imports {
		path := imp.Path.Value
		path = path[1 : len(path)-1] // strip quotes
		name := path
		if imp.Name != nil {
			name = imp.Name.Name
		} else if idx := lastSlash(path); idx >= 0 {
			name = path[idx+1:]
		}
		out[name] = true
	}
	return out
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

func topLevelNames(decl ast.Decl) []string {
	var names []string
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			names = append(names, d.Name.Name)
		}
	case *ast.GenDecl:
		for _, spec := range d.Specs {
			switch s := spec.(type) {
			case *ast.TypeSpec:
				names = append(names, s.Name.Name)
			case *ast.ValueSpec:
				for _, n := range s.Names {
					names = append(names, n.Name)
				}
			}
		}
	}
	return names
}
