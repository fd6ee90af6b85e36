package domain

import "fmt"

// ScopeKind distinguishes the two enumeration targets
type ScopeKind int

const (
	// ScopeContainer is a concrete remote directory
	ScopeContainer ScopeKind = iota
	// ScopeWorkingSet is the virtual favorites + tagged view
	ScopeWorkingSet
)

// String returns the kind name used in logs and metrics
func (k ScopeKind) String() string {
	switch k {
	case ScopeContainer:
		return "container"
	case ScopeWorkingSet:
		return "working_set"
	default:
		return fmt.Sprintf("ScopeKind(%d)", int(k))
	}
}

// ScopeClass keys the pending change sets of the anchor tracker
type ScopeClass int

const (
	ContainerClass ScopeClass = iota
	WorkingSetClass
)

// String returns the class name
func (c ScopeClass) String() string {
	if c == WorkingSetClass {
		return "working_set"
	}
	return "container"
}

// Scope is the enumeration target: the working set or a container path.
// The zero value is the container "/".
type Scope struct {
	kind ScopeKind
	path string
}

// WorkingSet returns the working set scope
func WorkingSet() Scope {
	return Scope{kind: ScopeWorkingSet}
}

// Container returns the scope for a remote directory path
func Container(p string) Scope {
	return Scope{kind: ScopeContainer, path: CleanPath(p)}
}

// Kind returns the scope kind
func (s Scope) Kind() ScopeKind { return s.kind }

// Path returns the container path; empty for the working set
func (s Scope) Path() string {
	if s.kind == ScopeWorkingSet {
		return ""
	}
	if s.path == "" {
		return "/"
	}
	return s.path
}

// Class returns the change-set class the scope drains from
func (s Scope) Class() ScopeClass {
	if s.kind == ScopeWorkingSet {
		return WorkingSetClass
	}
	return ContainerClass
}

// String implements fmt.Stringer
func (s Scope) String() string {
	if s.kind == ScopeWorkingSet {
		return "workingset"
	}
	return s.Path()
}

// ItemIdentifier names an item as seen by the host observer
type ItemIdentifier string

const (
	// RootContainer maps to the account home path
	RootContainer ItemIdentifier = "root"
	// WorkingSetItem maps to the working set scope
	WorkingSetItem ItemIdentifier = "workingset"
)
