package atomloop

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"codegen-forge/forge/internal/catalog"
	"codegen-forge/forge/internal/types"
)

// wellKnownImports mirrors compiler.DefaultFrontend's fixed table of
// well-known symbol->namespace mappings. Kept local rather than
// exported from internal/compiler so the compile adapter contract stays
// free of repair-specific vocabulary.
var wellKnownImports = map[string]string{
	"fmt": "fmt", "errors": "errors", "strings": "strings",
	"context": "context", "time": "time", "sync": "sync",
	"os": "os", "io": "io", "bytes": "bytes", "sort": "sort",
	"json": "encoding/json", "strconv": "strconv",
	"uuid": "github.com/google/uuid",
}

// applyRepairs runs one auto-repair pass over fragment: every
// auto-fixable diagnostic category present gets its corresponding
// syntax-tree rewrite applied once. Returns the rewritten source and
// whether anything actually changed.
func applyRepairs(fragment string, diags []types.Diagnostic, cat *catalog.Catalog) (string, bool) {
	present := make(map[types.DiagnosticCategory]bool, len(diags))
	for _, d := range diags {
		present[d.Category] = true
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fragment.go", fragment, parser.ParseComments)
	if err != nil {
		return fragment, false
	}

	var contracts []types.Contract
	if cat != nil {
		contracts = cat.All()
	}
	byName := make(map[string]types.Contract, len(contracts))
	for _, c := range contracts {
		byName[c.Name] = c
	}

	changed := false
	if present[types.CategoryIllegalInheritanceSealed] {
		changed = fixSealedInheritance(file, byName) || changed
	}
	if present[types.CategoryMissingInterfaceMember] || present[types.CategoryMissingAbstractMember] {
		changed = fixMissingMembers(file, byName) || changed
	}
	if present[types.CategorySignatureMismatch] {
		changed = fixSignatureMismatch(file, byName) || changed
	}
	if present[types.CategoryAmbiguousReference] && cat != nil {
		changed = fixAmbiguousReferences(file, cat.AmbiguousSimpleNames()) || changed
	}
	if present[types.CategoryMissingImport] {
		changed = fixMissingImports(file) || changed
	}
	if present[types.CategorySymbolCollision] {
		changed = fixSymbolCollision(file) || changed
	}

	if !changed {
		return fragment, false
	}

	var buf bytes.Buffer
	if err := (&printer.Config{Mode: printer.TabIndent | printer.UseSpaces, Tabwidth: 8}).Fprint(&buf, fset, file); err != nil {
		return fragment, false
	}
	return buf.String(), true
}

// fixSealedInheritance drops an embedded field naming a sealed abstract
// contract and replaces it with a named, unexported composition field
// of the sealed type, in place of the disallowed embedding.
func fixSealedInheritance(file *ast.File, byName map[string]types.Contract) bool {
	changed := false
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			for _, field := range st.Fields.List {
				if len(field.Names) != 0 {
					continue
				}
				ident, ok := field.Type.(*ast.Ident)
				if !ok {
					continue
				}
				c, found := byName[ident.Name]
				if !found || c.Kind != types.ContractAbstract || !c.IsSealed {
					continue
				}
				field.Names = []*ast.Ident{ast.NewIdent("inner" + ident.Name)}
				changed = true
			}
		}
	}
	return changed
}

// fixMissingMembers inserts panic("not implemented") stubs for every
// contract method an `implements:Name`-tagged type is missing
// (MissingInterfaceMember/MissingAbstractMember).
func fixMissingMembers(file *ast.File, byName map[string]types.Contract) bool {
	changed := false
	have := collectMethods(file)

	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			iface := implementsDirective(gd.Doc, ts.Doc)
			if iface == "" {
				continue
			}
			c, found := byName[iface]
			if !found {
				continue
			}
			for _, m := range c.Methods {
				if _, ok := have[ts.Name.Name][m.Name]; ok {
					continue
				}
				stub := stubMethod(ts.Name.Name, m)
				file.Decls = append(file.Decls, stub)
				changed = true
			}
		}
	}
	return changed
}

func stubMethod(recv string, m types.MethodSignature) *ast.FuncDecl {
	fields := &ast.FieldList{}
	for _, p := range m.Params {
		name, typ := splitParam(p)
		fields.List = append(fields.List, &ast.Field{
			Names: []*ast.Ident{ast.NewIdent(name)},
			Type:  ast.NewIdent(typ),
		})
	}
	var results *ast.FieldList
	if m.ReturnType != "" {
		results = &ast.FieldList{List: []*ast.Field{{Type: ast.NewIdent(m.ReturnType)}}}
	}
	return &ast.FuncDecl{
		Recv: &ast.FieldList{List: []*ast.Field{{
			Names: []*ast.Ident{ast.NewIdent("r")},
			Type:  &ast.StarExpr{X: ast.NewIdent(recv)},
		}}},
		Name: ast.NewIdent(m.Name),
		Type: &ast.FuncType{Params: fields, Results: results},
		Body: &ast.BlockStmt{List: []ast.Stmt{&ast.ExprStmt{X: &ast.CallExpr{
			Fun:  ast.NewIdent("panic"),
			Args: []ast.Expr{&ast.BasicLit{Kind: token.STRING, Value: `"not implemented"`}},
		}}}},
	}
}

// splitParam splits a "name Type" parameter string using the
// MethodSignature.Params convention; falls back to a synthesized name
// if the string carries only a type.
func splitParam(p string) (name, typ string) {
	parts := strings.Fields(p)
	switch len(parts) {
	case 0:
		return "_", "interface{}"
	case 1:
		return "_", parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// fixSignatureMismatch rewrites a method's sole return type to the
// contract's declared return type.
func fixSignatureMismatch(file *ast.File, byName map[string]types.Contract) bool {
	changed := false
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recv := receiverTypeName(fd.Recv.List[0].Type)
		c, found := contractForReceiver(file, recv, byName)
		if !found {
			continue
		}
		for _, m := range c.Methods {
			if m.Name != fd.Name.Name || m.ReturnType == "" {
				continue
			}
			if fd.Type.Results == nil || len(fd.Type.Results.List) != 1 {
				continue
			}
			want := m.ReturnType
			if ident, ok := fd.Type.Results.List[0].Type.(*ast.Ident); ok && ident.Name != want {
				fd.Type.Results.List[0].Type = ast.NewIdent(want)
				changed = true
			}
		}
	}
	return changed
}

func contractForReceiver(file *ast.File, recv string, byName map[string]types.Contract) (types.Contract, bool) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || ts.Name.Name != recv {
				continue
			}
			iface := implementsDirective(gd.Doc, ts.Doc)
			if iface == "" {
				continue
			}
			c, found := byName[iface]
			return c, found
		}
	}
	return types.Contract{}, false
}

// fixAmbiguousReferences rewrites a bare identifier known to be ambiguous
// to a qualified selector on the preferred namespace: Models over
// Services, then first alphabetically.
func fixAmbiguousReferences(file *ast.File, ambiguous map[string][]string) bool {
	changed := false
	for simple, fqns := range ambiguous {
		pkg := preferredPackage(fqns)
		changed = rewriteIdentToSelector(file, simple, pkg) || changed
	}
	return changed
}

func preferredPackage(fqns []string) string {
	sorted := append([]string(nil), fqns...)
	sort.Strings(sorted)
	for _, fqn := range sorted {
		if strings.HasPrefix(fqn, "Models.") {
			return "models"
		}
	}
	ns := strings.SplitN(sorted[0], ".", 2)[0]
	return strings.ToLower(ns)
}

// rewriteIdentToSelector replaces a bare *ast.Ident named simple with
// pkg.simple where it is a call argument, a callee, or the whole type of
// a var/const spec or of a field (struct field, parameter, result),
// skipping type/func declaration names themselves. Identifiers nested in
// other expressions (pointer, slice or map types, composite literals)
// are not rewritten.
func rewriteIdentToSelector(file *ast.File, simple, pkg string) bool {
	changed := false
	declNames := make(map[*ast.Ident]bool)
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok {
			for _, spec := range gd.Specs {
				if ts, ok := spec.(*ast.TypeSpec); ok {
					declNames[ts.Name] = true
				}
			}
		}
		if fd, ok := decl.(*ast.FuncDecl); ok {
			declNames[fd.Name] = true
		}
	}

	rewriteExpr := func(exprs []ast.Expr) {
		for i, e := range exprs {
			if ident, ok := e.(*ast.Ident); ok && ident.Name == simple && !declNames[ident] {
				exprs[i] = &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(simple)}
				changed = true
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			rewriteExpr(node.Args)
			if ident, ok := node.Fun.(*ast.Ident); ok && ident.Name == simple {
				node.Fun = &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(simple)}
				changed = true
			}
		case *ast.ValueSpec:
			if ident, ok := node.Type.(*ast.Ident); ok && ident.Name == simple {
				node.Type = &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(simple)}
				changed = true
			}
		case *ast.Field:
			if ident, ok := node.Type.(*ast.Ident); ok && ident.Name == simple {
				node.Type = &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(simple)}
				changed = true
			}
		}
		return true
	})
	return changed
}

// fixMissingImports inserts an import declaration for every unresolved
// well-known selector reference.
func fixMissingImports(file *ast.File) bool {
	existing := make(map[string]bool)
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		existing[path] = true
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
		return false
	}
	sort.Strings(toAdd)

	specs := make([]ast.Spec, 0, len(toAdd))
	for _, path := range toAdd {
		specs = append(specs, &ast.ImportSpec{Path: &ast.BasicLit{Kind: token.STRING, Value: `"` + path + `"`}})
	}
	decl := &ast.GenDecl{Tok: token.IMPORT, Lparen: token.Pos(1), Specs: specs}
	file.Decls = append([]ast.Decl{decl}, file.Decls...)
	return true
}

// fixSymbolCollision drops the later of two top-level declarations
// sharing a name within the fragment itself; collisions against
// contract stubs or dependency extracts are out of scope here — the
// Redefinition guardrail governs those and is not auto-fixable at the
// fragment level.
func fixSymbolCollision(file *ast.File) bool {
	seen := make(map[string]bool)
	changed := false
	var kept []ast.Decl
	for _, decl := range file.Decls {
		names := declNames(decl)
		drop := false
		for _, n := range names {
			if seen[n] {
				drop = true
			}
			seen[n] = true
		}
		if drop {
			changed = true
			continue
		}
		kept = append(kept, decl)
	}
	if changed {
		file.Decls = kept
	}
	return changed
}

func declNames(decl ast.Decl) []string {
	var names []string
	switch d := decl.(type) {
	case *ast.FuncDecl:
		if d.Recv == nil {
			names = append(names, d.Name.Name)
		}
	case *ast.GenDecl:
		if d.Tok != token.TYPE {
			return nil
		}
		for _, spec := range d.Specs {
			if ts, ok := spec.(*ast.TypeSpec); ok {
				names = append(names, ts.Name.Name)
			}
		}
	}
	return names
}

func collectMethods(file *ast.File) map[string]map[string]*ast.FuncDecl {
	out := make(map[string]map[string]*ast.FuncDecl)
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recv := receiverTypeName(fd.Recv.List[0].Type)
		if recv == "" {
			continue
		}
		if out[recv] == nil {
			out[recv] = make(map[string]*ast.FuncDecl)
		}
		out[recv][fd.Name.Name] = fd
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	default:
		return ""
	}
}

func implementsDirective(docs ...*ast.CommentGroup) string {
	const prefix = "implements:"
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, c := range doc.List {
			text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
			if strings.HasPrefix(text, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(text, prefix))
			}
		}
	}
	return ""
}
