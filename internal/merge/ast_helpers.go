package merge

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"

	"codegen-forge/forge/internal/types"
)

// buildUnit turns one parsed *ast.TypeSpec into a types.RegistryEntry
// plus the typeUnit the emit phase needs, classifying TypeKind from the
// declaring atom's Kind (contract-producing atoms declare enums and
// abstracts; everything else declares classes/records, distinguished
// structurally by whether the type is an interface).
func buildUnit(atomID, namespace string, atomKind types.AtomKind, ts *ast.TypeSpec, file *ast.File, imports map[string]string) (types.RegistryEntry, *typeUnit) {
	unit := &typeUnit{imports: cloneImports(imports)}

	switch t := ts.Type.(type) {
	case *ast.InterfaceType:
		unit.ifaceType = t
		unit.entry.Kind = types.TypeInterface
	case *ast.StructType:
		if t.Fields == nil {
			t.Fields = &ast.FieldList{}
		}
		unit.structType = t
		if atomKind == types.KindDto {
			unit.entry.Kind = types.TypeRecord
		} else if atomKind == types.KindContractAbstract {
			unit.entry.Kind = types.TypeAbstract
		} else {
			unit.entry.Kind = types.TypeClass
		}
	default:
		if atomKind == types.KindContractEnum {
			unit.entry.Kind = types.TypeEnum
			unit.underlying = t
			unit.constDecl = findConstDecl(file)
		} else {
			unit.entry.Kind = types.TypeClass
		}
	}

	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) == 0 {
			continue
		}
		if receiverName(fd.Recv.List[0].Type) != ts.Name.Name {
			continue
		}
		unit.methods = append(unit.methods, fd)
	}

	unit.entry.FQN = namespace + "." + ts.Name.Name
	unit.entry.SimpleName = ts.Name.Name
	unit.entry.Namespace = namespace
	unit.entry.OwnerAtomID = atomID
	unit.entry.Members = collectMembers(unit)
	return unit.entry, unit
}

func findConstDecl(file *ast.File) *ast.GenDecl {
	for _, decl := range file.Decls {
		if gd, ok := decl.(*ast.GenDecl); ok && gd.Tok == token.CONST {
			return gd
		}
	}
	return nil
}

func collectMembers(u *typeUnit) []types.Member {
	var members []types.Member
	if u.structType != nil {
		for _, f := range u.structType.Fields.List {
			typ := exprString(f.Type)
			for _, n := range f.Names {
				members = append(members, types.Member{Kind: types.MemberField, Name: n.Name, Signature: n.Name + " " + typ})
			}
		}
	}
	if u.constDecl != nil {
		for _, spec := range u.constDecl.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok {
				continue
			}
			for _, n := range vs.Names {
				members = append(members, types.Member{Kind: types.MemberField, Name: n.Name, Signature: n.Name})
			}
		}
	}
	if u.ifaceType != nil && u.ifaceType.Methods != nil {
		for _, m := range u.ifaceType.Methods.List {
			for _, n := range m.Names {
				members = append(members, types.Member{Kind: types.MemberMethod, Name: n.Name, Signature: exprString(m.Type)})
			}
		}
	}
	for _, fd := range u.methods {
		members = append(members, types.Member{Kind: types.MemberMethod, Name: fd.Name.Name, Signature: funcSignature(fd)})
	}
	return members
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverName(t.X)
	default:
		return ""
	}
}

func funcSignature(fd *ast.FuncDecl) string {
	return fd.Name.Name + exprString(fd.Type)
}

func exprString(e ast.Expr) string {
	var buf bytes.Buffer
	fset := token.NewFileSet()
	if err := printer.Fprint(&buf, fset, e); err != nil {
		return ""
	}
	return buf.String()
}

func importMap(file *ast.File) map[string]string {
	out := make(map[string]string, len(file.Imports))
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		name := ""
		if imp.Name != nil {
			name = imp.Name.Name
		}
		out[path] = name
	}
	return out
}

func cloneImports(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
