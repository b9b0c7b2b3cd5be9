package merge

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"sort"
	"strings"

	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/types"
)

// resolveAmbiguousNames implements the AmbiguousSimpleName row of the
// conflict resolution policy table across the merged TypeRegistry: when
// the same simple name denotes two different FQNs, every reference to
// the bare name in a third namespace is rewritten to the preferred
// namespace's selector. A bare reference inside one of the declaring
// namespaces themselves already resolves correctly to that namespace's
// own type under normal package scoping and is left alone.
func resolveAmbiguousNames(units map[string]*typeUnit, pol *policy.Engine, interactive bool) ([]types.Conflict, error) {
	bySimple := make(map[string][]string)
	for fqn, u := range units {
		bySimple[u.entry.SimpleName] = append(bySimple[u.entry.SimpleName], fqn)
	}

	var conflicts []types.Conflict
	for simple, fqns := range bySimple {
		if len(fqns) < 2 {
			continue
		}
		sort.Strings(fqns)
		res, err := pol.Resolve(policy.ConflictInstance{ID: "ambiguous:" + simple, Kind: types.ConflictAmbiguousSimpleName}, interactive)
		if err != nil {
			return nil, fmt.Errorf("merge: resolve AmbiguousSimpleName %s: %w", simple, err)
		}
		conflicts = append(conflicts, types.Conflict{
			Kind: types.ConflictAmbiguousSimpleName, Resolution: res,
			First: units[fqns[0]].entry, Second: units[fqns[1]].entry,
			Detail: fmt.Sprintf("%d declarations of %q across namespaces", len(fqns), simple),
		})

		preferred := preferredNamespace(fqns)
		pkg := strings.ToLower(preferred)
		declaringNamespace := make(map[string]bool, len(fqns))
		for _, fqn := range fqns {
			declaringNamespace[fqn[:len(fqn)-len(simple)-1]] = true
		}
		for _, u := range units {
			if declaringNamespace[u.entry.Namespace] {
				continue
			}
			rewriteReferencesInUnit(u, simple, pkg)
		}
	}
	return conflicts, nil
}

func preferredNamespace(fqns []string) string {
	for _, fqn := range fqns {
		if strings.HasPrefix(fqn, "Models.") {
			return "Models"
		}
	}
	return strings.SplitN(fqns[0], ".", 2)[0]
}

// rewriteReferencesInUnit qualifies a bare reference to simple with
// pkg.simple where it is the whole type of one of u's struct fields or,
// inside u's methods, of a parameter, result, field or var declaration.
// References nested in other expressions (pointer, slice or map types,
// composite literals, conversions) are left bare.
func rewriteReferencesInUnit(u *typeUnit, simple, pkg string) {
	rewrite := func(expr *ast.Expr) {
		if ident, ok := (*expr).(*ast.Ident); ok && ident.Name == simple {
			*expr = &ast.SelectorExpr{X: ast.NewIdent(pkg), Sel: ast.NewIdent(simple)}
		}
	}
	if u.structType != nil {
		for _, f := range u.structType.Fields.List {
			rewrite(&f.Type)
		}
	}
	for _, m := range u.methods {
		ast.Inspect(m, func(n ast.Node) bool {
			switch node := n.(type) {
			case *ast.Field:
				rewrite(&node.Type)
			case *ast.ValueSpec:
				rewrite(&node.Type)
			}
			return true
		})
	}
}

// emit reassembles the registry into one file per declared top-level
// type, grouped by namespace sorted lexicographically,
// imports deduplicated and sorted.
func emit(units map[string]*typeUnit) map[string]string {
	files := make(map[string]string)
	for _, fqn := range sortedKeys(units) {
		u := units[fqn]
		pkg := strings.ToLower(u.entry.Namespace)
		if pkg == "" {
			pkg = "global"
		}
		path := strings.ReplaceAll(u.entry.Namespace, ".", "/")
		if path == "" {
			path = "global"
		}
		files[fmt.Sprintf("%s/%s.go", strings.ToLower(path), strings.ToLower(u.entry.SimpleName))] = renderUnit(pkg, u)
	}
	return files
}

func renderUnit(pkg string, u *typeUnit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "package %s\n\n", pkg)

	if len(u.imports) > 0 {
		paths := make([]string, 0, len(u.imports))
		for path := range u.imports {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		sb.WriteString("import (\n")
		for _, path := range paths {
			if name := u.imports[path]; name != "" {
				fmt.Fprintf(&sb, "\t%s %q\n", name, path)
			} else {
				fmt.Fprintf(&sb, "\t%q\n", path)
			}
		}
		sb.WriteString(")\n\n")
	}

	switch u.entry.Kind {
	case types.TypeInterface:
		sb.WriteString(renderNode(&ast.GenDecl{Tok: token.TYPE, Specs: []ast.Spec{
			&ast.TypeSpec{Name: ast.NewIdent(u.entry.SimpleName), Type: u.ifaceType},
		}}))
	case types.TypeEnum:
		if u.underlying != nil {
			sb.WriteString(renderNode(&ast.GenDecl{Tok: token.TYPE, Specs: []ast.Spec{
				&ast.TypeSpec{Name: ast.NewIdent(u.entry.SimpleName), Type: u.underlying},
			}}))
			sb.WriteString("\n\n")
		}
		if u.constDecl != nil {
			sb.WriteString(renderNode(u.constDecl))
		}
	default:
		sb.WriteString(renderNode(&ast.GenDecl{Tok: token.TYPE, Specs: []ast.Spec{
			&ast.TypeSpec{Name: ast.NewIdent(u.entry.SimpleName), Type: u.structType},
		}}))
	}
	sb.WriteString("\n")

	sort.Slice(u.methods, func(i, j int) bool { return u.methods[i].Name.Name < u.methods[j].Name.Name })
	for _, m := range u.methods {
		sb.WriteString("\n")
		sb.WriteString(renderNode(m))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderNode(n ast.Node) string {
	var buf bytes.Buffer
	fset := token.NewFileSet()
	if err := (&printer.Config{Mode: printer.TabIndent | printer.UseSpaces, Tabwidth: 8}).Fprint(&buf, fset, n); err != nil {
		return ""
	}
	return buf.String()
}
