package atomloop

import (
	"fmt"
	"strings"

	"codegen-forge/forge/internal/types"
)

// guardrailBlock is the fixed block enumerating forbidden behaviors:
// redefining frozen types, inheriting from sealed contracts, inventing
// enum members, and misplacing DTOs.
const guardrailBlock = `Guardrails (violations will be rejected):
- Do not redefine any type already listed under "Known symbols" below.
- Never embed or extend a contract marked sealed; use a composition field instead.
- Never reference an enum member that is not listed under that enum's contract.
- Place DTOs in their declared namespace's package; do not invent new namespaces.`

// buildPrompt assembles the generation/repair prompt for one oracle
// round-trip. On the final round-trip (budget-1) the prompt is
// amplified to emphasize exact namespaces, expected types, and that
// the fragment must compile.
func (l *Loop) buildPrompt(atom types.Atom, priorFragment string, diags []types.Diagnostic, roundTrip int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate the %s atom %q in namespace %q.\n", atom.Kind, atom.ID, atom.Namespace)
	sb.WriteString("Description: ")
	sb.WriteString(atom.Description)
	sb.WriteString("\n")
	if atom.Context != "" {
		sb.WriteString("Context: ")
		sb.WriteString(atom.Context)
		sb.WriteString("\n")
	}
	if len(atom.ExpectedTypes) > 0 {
		fmt.Fprintf(&sb, "Expected top-level types: %s\n", strings.Join(atom.ExpectedTypes, ", "))
	}

	contracts := l.relevantContracts(atom)
	if len(contracts) > 0 {
		sb.WriteString("\nKnown symbols (frozen contracts relevant to this atom):\n")
		for _, c := range contracts {
			sb.WriteString(describeContract(c))
		}
	}

	if l.Catalog != nil {
		if amb := l.Catalog.AmbiguousSimpleNames(); len(amb) > 0 {
			sb.WriteString("\nAmbiguity warnings (prefer the fully-qualified name):\n")
			for simple, fqns := range amb {
				fmt.Fprintf(&sb, "- %s could mean: %s\n", simple, strings.Join(fqns, " or "))
			}
		}
	}

	depExtracts := l.dependencyExtracts(atom)
	if depExtracts != "" {
		sb.WriteString("\nCompleted dependency signatures:\n")
		sb.WriteString(depExtracts)
	}

	sb.WriteString("\n")
	sb.WriteString(guardrailBlock)
	sb.WriteString("\n")

	if priorFragment != "" {
		sb.WriteString("\nPrevious candidate fragment:\n```go\n")
		sb.WriteString(priorFragment)
		sb.WriteString("\n```\n")
	}
	if len(diags) > 0 {
		sb.WriteString("\nUnresolved compile diagnostics from the previous attempt:\n")
		for _, d := range diags {
			fmt.Fprintf(&sb, "- [%s] %s (%s)\n", d.Category, d.Message, d.Location)
		}
	}

	if roundTrip >= l.Budgets.OracleRoundTrips-1 {
		sb.WriteString("\nThis is the final attempt. Use exact namespaces and expected type names verbatim; the fragment MUST compile with no remaining diagnostics.\n")
	}

	return sb.String()
}

// dependencyExtracts renders each completed dependency's type-contract
// extract (or, when small, its full fragment) per the step 1.
func (l *Loop) dependencyExtracts(atom types.Atom) string {
	var sb strings.Builder
	for _, depID := range atom.Dependencies {
		dep, ok := l.depAtom(depID)
		if !ok || dep.Status != types.StatusCompleted {
			continue
		}
		fmt.Fprintf(&sb, "- %s (%s):\n", dep.ID, dep.Namespace)
		if dep.TypeContractExtract != "" {
			sb.WriteString(indent(dep.TypeContractExtract))
		} else if len(dep.GeneratedFragment) < smallFragmentThreshold {
			sb.WriteString(indent(dep.GeneratedFragment))
		}
		if consumed := atom.ConsumedTypes[depID]; len(consumed) > 0 {
			fmt.Fprintf(&sb, "  (this atom consumes: %s)\n", strings.Join(consumed, ", "))
		}
	}
	return sb.String()
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n") + "\n"
}

func describeContract(c types.Contract) string {
	var sb strings.Builder
	switch c.Kind {
	case types.ContractEnum:
		fmt.Fprintf(&sb, "- enum %s { %s }\n", c.FQN(), strings.Join(c.Members, ", "))
	case types.ContractInterface, types.ContractAbstract:
		sealed := ""
		if c.Kind == types.ContractAbstract && c.IsSealed {
			sealed = " (sealed)"
		}
		fmt.Fprintf(&sb, "- %s %s%s:\n", strings.ToLower(string(c.Kind)), c.FQN(), sealed)
		for _, m := range c.Methods {
			fmt.Fprintf(&sb, "    %s(%s) %s\n", m.Name, strings.Join(m.Params, ", "), m.ReturnType)
		}
	case types.ContractModel:
		fmt.Fprintf(&sb, "- model %s:\n", c.FQN())
		for _, p := range c.Properties {
			fmt.Fprintf(&sb, "    %s %s\n", p.Name, p.Type)
		}
	}
	return sb.String()
}

// contractStub renders one frozen contract as Go source, standing in for
// the real cross-package type during fragment-level compilation.
func contractStub(c types.Contract) string {
	pkg := strings.ToLower(c.Namespace)
	if pkg == "" {
		pkg = "models"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "package %s\n\n", pkg)

	switch c.Kind {
	case types.ContractEnum:
		fmt.Fprintf(&sb, "type %s int\n\nconst (\n", c.Name)
		for i, m := range c.Members {
			if i == 0 {
				fmt.Fprintf(&sb, "\t%s_%s %s = iota\n", c.Name, m, c.Name)
			} else {
				fmt.Fprintf(&sb, "\t%s_%s\n", c.Name, m)
			}
		}
		sb.WriteString(")\n")
	case types.ContractInterface:
		fmt.Fprintf(&sb, "type %s interface {\n", c.Name)
		for _, m := range c.Methods {
			fmt.Fprintf(&sb, "\t%s(%s) %s\n", m.Name, strings.Join(m.Params, ", "), m.ReturnType)
		}
		sb.WriteString("}\n")
	case types.ContractAbstract:
		fmt.Fprintf(&sb, "type %s struct{}\n\n", c.Name)
		for _, m := range c.Methods {
			fmt.Fprintf(&sb, "func (*%s) %s(%s) %s { panic(\"not implemented\") }\n", c.Name, m.Name, strings.Join(m.Params, ", "), m.ReturnType)
		}
	case types.ContractModel:
		fmt.Fprintf(&sb, "type %s struct {\n", c.Name)
		for _, p := range c.Properties {
			fmt.Fprintf(&sb, "\t%s %s\n", exportedFieldName(p.Name), p.Type)
		}
		sb.WriteString("}\n")
	}
	return sb.String()
}

func exportedFieldName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
