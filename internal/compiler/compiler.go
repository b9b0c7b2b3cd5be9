// Package compiler implements the compile adapter contract
// ("compile(files: list) -> { ok, diagnostics }") and the classifier that
// maps its stable diagnostic-id vocabulary onto the closed
// types.DiagnosticCategory taxonomy. The default frontend analyzes the
// generated Go fragments structurally with go/parser and go/ast rather
// than shelling out to `go build` — fragments are deliberately
// incomplete slices of a not-yet-assembled project, so a real
// type-checker would reject nearly all of them on unresolved imports
// that the merge phase has not emitted yet.
package compiler

import "codegen-forge/forge/internal/types"

// Severity distinguishes errors (always surfaced) from warnings
// (suppressed by policy per the step 3, "errors only").
type Severity string

const (
	SeverityError   Severity = "Error"
	SeverityWarning Severity = "Warning"
)

// Diagnostic is one compiler-adapter finding, matching the
// {id, severity, message, file, line} shape.
type Diagnostic struct {
	ID       string
	Severity Severity
	Message  string
	File     string
	Line     int
}

// SourceFile is one file handed to a Frontend for analysis.
type SourceFile struct {
	Name    string
	Content string
}

// Result is the compile adapter's verdict.
type Result struct {
	OK          bool
	Diagnostics []Diagnostic
}

// Frontend is the pluggable compile backend. The default implementation
// analyzes Go source structurally; a project could swap in a real
// `go build`-backed frontend for the whole-project recompile step
// without touching the rest of the pipeline.
type Frontend interface {
	Compile(files []SourceFile) (Result, error)
}

// Classify maps one Diagnostic onto a DiagnosticCategory and reports
// whether the category is auto-fixable — each category carries a
// predicate auto_fixable.
func Classify(d Diagnostic) (types.DiagnosticCategory, bool) {
	switch d.ID {
	case idSymbolCollision:
		return types.CategorySymbolCollision, true
	case idMissingInterfaceMember:
		return types.CategoryMissingInterfaceMember, true
	case idMissingAbstractMember:
		return types.CategoryMissingAbstractMember, true
	case idSignatureMismatch:
		return types.CategorySignatureMismatch, true
	case idMissingEnumMember:
		return types.CategoryMissingEnumMember, false
	case idIllegalInheritanceSealed:
		return types.CategoryIllegalInheritanceSealed, true
	case idMissingImport:
		return types.CategoryMissingImport, true
	case idAmbiguousReference:
		return types.CategoryAmbiguousReference, true
	default:
		return types.CategoryOther, false
	}
}

// Stable diagnostic-id vocabulary produced by DefaultFrontend; the
// classifier maps each one to a DiagnosticCategory.
const (
	idSyntaxError              = "FRG001"
	idSymbolCollision          = "FRG002"
	idMissingInterfaceMember   = "FRG003"
	idMissingAbstractMember    = "FRG004"
	idSignatureMismatch        = "FRG005"
	idMissingEnumMember        = "FRG006"
	idIllegalInheritanceSealed = "FRG007"
	idMissingImport            = "FRG008"
	idAmbiguousReference       = "FRG009"
)
