package atomloop

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/printer"
	"go/token"

	"codegen-forge/forge/internal/policy"
	"codegen-forge/forge/internal/types"
)

// ExtractTypeContract renders the public signatures of every top-level
// declaration in fragment — type specs and exported function/method
// signatures with bodies stripped — for storage as a lightweight
// post-generation artifact in Atom.TypeContractExtract, and for
// reinjection into dependents' prompts.
func ExtractTypeContract(fragment string) string {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fragment.go", fragment, parser.ParseComments)
	if err != nil {
		return ""
	}

	out := &ast.File{Name: file.Name, Doc: nil}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok == token.TYPE || d.Tok == token.CONST {
				out.Decls = append(out.Decls, d)
			}
		case *ast.FuncDecl:
			stripped := &ast.FuncDecl{
				Recv: d.Recv,
				Name: d.Name,
				Type: d.Type,
				Body: &ast.BlockStmt{},
			}
			out.Decls = append(out.Decls, stripped)
		}
	}

	var buf bytes.Buffer
	if err := (&printer.Config{Mode: printer.TabIndent | printer.UseSpaces, Tabwidth: 8}).Fprint(&buf, fset, out); err != nil {
		return ""
	}
	return buf.String()
}

// extractFragmentFacts pulls the policy.FragmentFacts the Contract
// Catalog's purely syntactic guardrail scan needs out of a fragment's
// AST: declared top-level symbols, EnumName.Member selector references
// against enums the catalog actually knows about
// (to avoid flagging ordinary qualified calls as enum references), and
// struct embeddings.
func extractFragmentFacts(atomID, fragment string, contracts []types.Contract) policy.FragmentFacts {
	facts := policy.FragmentFacts{AtomID: atomID}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "fragment.go", fragment, 0)
	if err != nil {
		return facts
	}

	knownEnums := make(map[string]bool)
	for _, c := range contracts {
		if c.Kind == types.ContractEnum {
			knownEnums[c.Name] = true
		}
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				facts.DeclaredSymbols = append(facts.DeclaredSymbols, ts.Name.Name)
				if st, ok := ts.Type.(*ast.StructType); ok && st.Fields != nil {
					for _, field := range st.Fields.List {
						if len(field.Names) != 0 {
							continue
						}
						if ident, ok := field.Type.(*ast.Ident); ok {
							facts.Inheritances = append(facts.Inheritances, policy.Inheritance{
								Child: ts.Name.Name, Parent: ident.Name,
							})
						}
					}
				}
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok || !knownEnums[ident.Name] {
			return true
		}
		facts.EnumRefs = append(facts.EnumRefs, policy.EnumRef{EnumName: ident.Name, Member: sel.Sel.Name})
		return true
	})

	return facts
}
