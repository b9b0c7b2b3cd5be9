package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"codegen-forge/forge/internal/types"
)

// CheckContractCompliance detects MissingInterfaceMember,
// MissingAbstractMember, SignatureMismatch, and IllegalInheritanceFromSealed
// diagnostics by structurally matching a fragment's types against the
// frozen catalog.
//
// Two Go-idiomatic conventions stand in for the source language's
// explicit `class Foo : IBar` syntax: a type satisfies an Interface or
// Abstract contract when its doc comment carries an `implements:Name`
// directive, and it inherits from an Abstract contract when it embeds a
// field named after that contract.
func CheckContractCompliance(files []SourceFile, contracts []types.Contract) ([]Diagnostic, error) {
	byName := make(map[string]types.Contract, len(contracts))
	for _, c := range contracts {
		byName[c.Name] = c
	}

	fset := token.NewFileSet()
	var diags []Diagnostic

	for _, f := range files {
		file, err := parser.ParseFile(fset, f.Name, f.Content, parser.ParseComments)
		if err != nil {
			continue // syntax errors are already reported by Compile
		}

		methodsByType := collectMethods(file)

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

				if st, ok := ts.Type.(*ast.StructType); ok {
					diags = append(diags, checkEmbeddedSealed(f.Name, fset, ts, st, byName)...)
				}

				iface := implementsDirective(gd.Doc, ts.Doc)
				if iface == "" {
					continue
				}
				c, found := byName[iface]
				if !found {
					continue
				}
				diags = append(diags, checkMemberCompliance(f.Name, fset, ts, c, methodsByType[ts.Name.Name])...)
			}
		}
	}
	return diags, nil
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
			text := strings.TrimPrefix(c.Text, "//")
			text = strings.TrimSpace(text)
			if strings.HasPrefix(text, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(text, prefix))
			}
		}
	}
	return ""
}

func checkEmbeddedSealed(file string, fset *token.FileSet, ts *ast.TypeSpec, st *ast.StructType, byName map[string]types.Contract) []Diagnostic {
	var diags []Diagnostic
	if st.Fields == nil {
		return diags
	}
	for _, field := range st.Fields.List {
		if len(field.Names) != 0 {
			continue // not an embedded field
		}
		ident, ok := field.Type.(*ast.Ident)
		if !ok {
			continue
		}
		c, found := byName[ident.Name]
		if !found || c.Kind != types.ContractAbstract || !c.IsSealed {
			continue
		}
		diags = append(diags, Diagnostic{
			ID:       idIllegalInheritanceSealed,
			Severity: SeverityError,
			Message:  fmt.Sprintf("%s embeds sealed contract %s", ts.Name.Name, ident.Name),
			File:     file,
			Line:     fset.Position(field.Pos()).Line,
		})
	}
	return diags
}

func checkMemberCompliance(file string, fset *token.FileSet, ts *ast.TypeSpec, c types.Contract, have map[string]*ast.FuncDecl) []Diagnostic {
	var diags []Diagnostic
	missingID := idMissingInterfaceMember
	if c.Kind == types.ContractAbstract {
		missingID = idMissingAbstractMember
	}
	for _, m := range c.Methods {
		fd, ok := have[m.Name]
		if !ok {
			diags = append(diags, Diagnostic{
				ID:       missingID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s is missing %s member %s", ts.Name.Name, c.Name, m.Name),
				File:     file,
				Line:     fset.Position(ts.Pos()).Line,
			})
			continue
		}
		if fd.Type.Params == nil || len(fd.Type.Params.List) != len(m.Params) {
			diags = append(diags, Diagnostic{
				ID:       idSignatureMismatch,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s.%s parameter count does not match %s", ts.Name.Name, m.Name, c.Name),
				File:     file,
				Line:     fset.Position(fd.Pos()).Line,
			})
		}
	}
	return diags
}
