package merge

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"codegen-forge/forge/internal/compiler"
	"codegen-forge/forge/internal/logging"
	"codegen-forge/forge/internal/types"
)

// wellKnownImports mirrors internal/compiler's and internal/atomloop's
// table, reused verbatim at the project-level auto-repair phase.
var wellKnownImports = map[string]string{
	"fmt": "fmt", "errors": "errors", "strings": "strings",
	"context": "context", "time": "time", "sync": "sync",
	"os": "os", "io": "io", "bytes": "bytes", "sort": "sort",
	"json": "encoding/json", "strconv": "strconv",
	"uuid": "github.com/google/uuid",
}

// autoRepairProject recompiles the assembled project and inserts any
// missing imports the per-fragment loop couldn't
// see (a symbol only becomes resolvable once sibling namespaces are
// merged in), capped at maxPasses.
func autoRepairProject(files map[string]string, frontend compiler.Frontend, maxPasses int) (map[string]string, []types.Diagnostic) {
	var diags []types.Diagnostic

	for pass := 0; pass <= maxPasses; pass++ {
		names := fileNames(files)
		units := make([]compiler.SourceFile, 0, len(names))
		for _, n := range names {
			units = append(units, compiler.SourceFile{Name: n, Content: files[n]})
		}

		result, err := frontend.Compile(units)
		if err != nil {
			diags = []types.Diagnostic{{Category: types.CategoryOther, Message: err.Error()}}
			return files, diags
		}
		diags = classify(result.Diagnostics)

		if pass == maxPasses {
			break
		}

		byFile := make(map[string][]types.Diagnostic)
		anyFixable := false
		for _, d := range diags {
			if !d.AutoFixable {
				continue
			}
			byFile[d.Location] = append(byFile[d.Location], d)
			anyFixable = true
		}
		if !anyFixable {
			break
		}

		changed := false
		for name, ds := range byFile {
			repaired, ok := fixMissingImportsInFile(files[name], ds)
			if ok {
				files[name] = repaired
				changed = true
			}
		}
		if !changed {
			break
		}
		logging.MergeDebug("project auto-repair pass %d applied fixes to %d file(s)", pass, len(byFile))
	}
	return files, diags
}

func classify(raw []compiler.Diagnostic) []types.Diagnostic {
	out := make([]types.Diagnostic, 0, len(raw))
	for _, d := range raw {
		if d.Severity != compiler.SeverityError {
			continue
		}
		cat, fixable := compiler.Classify(d)
		out = append(out, types.Diagnostic{ID: d.ID, Category: cat, Message: d.Message, Location: d.File, AutoFixable: fixable})
	}
	return out
}

func fileNames(files map[string]string) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func fixMissingImportsInFile(content string, diags []types.Diagnostic) (string, bool) {
	hasMissingImport := false
	for _, d := range diags {
		if d.Category == types.CategoryMissingImport {
			hasMissingImport = true
		}
	}
	if !hasMissingImport {
		return content, false
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "merged.go", content, parser.ParseComments)
	if err != nil {
		return content, false
	}

	existing := make(map[string]bool)
	for _, imp := range file.Imports {
		existing[strings.Trim(imp.Path.Value, `"`)] = true
	}

	referenced := make(map[string]bool)
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		if path, known := wellKnownImports[ident.Name]; known {
			referenced[path] = true
		}
		return true
	})

	var toAdd []string
	for path := range referenced {
		if !existing[path] {
			toAdd = append(toAdd, path)
		}
	}
	if len(toAdd) == 0 {
		return content, false
	}
	sort.Strings(toAdd)

	specs := make([]ast.Spec, 0, len(toAdd))
	for _, path := range toAdd {
		specs = append(specs, &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: `"` + path + `"`}})
	}
	decl := &ast.GenDecl{Tok: token.IMPORT, Lparen: token.Pos(1), Specs: specs}
	file.Decls = append([]ast.Decl{decl}, file.Decls...)

	var buf bytes.Buffer
	if err := (&printer.Config{Mode: printer.TabIndent | printer.UseSpaces, Tabwidth: 8}).Fprint(&buf, fset, file); err != nil {
		return content, false
	}
	return buf.String(), true
}
