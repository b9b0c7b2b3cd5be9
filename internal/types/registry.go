package types

// TypeKind classifies a declared top-level type in the TypeRegistry.
type TypeKind string

const (
	TypeClass     TypeKind = "Class"
	TypeInterface TypeKind = "Interface"
	TypeEnum      TypeKind = "Enum"
	TypeAbstract  TypeKind = "Abstract"
	TypeRecord    TypeKind = "Record"
)

// MemberKind classifies a member signature recorded for a registry entry.
type MemberKind string

const (
	MemberMethod   MemberKind = "Method"
	MemberProperty MemberKind = "Property"
	MemberField    MemberKind = "Field"
)

// Member is a single signature belonging to a RegistryEntry.
type Member struct {
	Kind      MemberKind `json:"kind"`
	Name      string     `json:"name"`
	Signature string     `json:"signature"`
}

// RegistryEntry is one declared type accumulated during the merge
// parse and registry-build phases.
type RegistryEntry struct {
	FQN        string   `json:"fqn"`
	SimpleName string   `json:"simple_name"`
	Namespace  string   `json:"namespace"`
	Kind       TypeKind `json:"kind"`
	OwnerAtomID string  `json:"owner_atom_id"`
	IsPartial  bool     `json:"is_partial"`
	Members    []Member `json:"members"`
}

// ConflictKind tags the variant of a Conflict.
type ConflictKind string

const (
	ConflictDuplicateType        ConflictKind = "DuplicateType"
	ConflictDuplicateMember      ConflictKind = "DuplicateMember"
	ConflictAmbiguousSimpleName  ConflictKind = "AmbiguousSimpleName"
)

// Resolution is the action applied (or proposed) for a Conflict.
type Resolution string

const (
	ResolutionKeepFirst               Resolution = "KeepFirst"
	ResolutionMergeAsPartial          Resolution = "MergeAsPartial"
	ResolutionRemoveDuplicate         Resolution = "RemoveDuplicate"
	ResolutionUseFullyQualifiedName   Resolution = "UseFullyQualifiedName"
	ResolutionFailFast                Resolution = "FailFast"
	ResolutionManualInterventionReq   Resolution = "ManualInterventionRequired"
)

// Conflict carries the two offending registry entries plus a resolution.
type Conflict struct {
	Kind       ConflictKind   `json:"kind"`
	First      RegistryEntry  `json:"first"`
	Second     RegistryEntry  `json:"second"`
	Resolution Resolution     `json:"resolution"`
	Detail     string         `json:"detail,omitempty"`
}
