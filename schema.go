package statusflow

import (
	"slices"

	"github.com/julo/statusflow/internal/graph"
)

// PathType classifies an allowed path for reporting and diagrams.
type PathType int

const (
	PathTypeUnknown   PathType = 0
	PathTypeHappy     PathType = 1
	PathTypeDetour    PathType = 2
	PathTypeGraveyard PathType = 3
)

func (p PathType) String() string {
	switch p {
	case PathTypeHappy:
		return "happy"
	case PathTypeDetour:
		return "detour"
	case PathTypeGraveyard:
		return "graveyard"
	default:
		return "unknown"
	}
}

func (p PathType) Valid() bool {
	return p > PathTypeUnknown && p <= PathTypeGraveyard
}

// ParsePathType is the inverse of PathType.String.
func ParsePathType(s string) (PathType, bool) {
	for _, p := range []PathType{PathTypeHappy, PathTypeDetour, PathTypeGraveyard} {
		if p.String() == s {
			return p, true
		}
	}

	return PathTypeUnknown, false
}

// AllowedPath is a single edge of a workflow schema.
type AllowedPath struct {
	Origin             StatusCode
	Destination        StatusCode
	CustomerAccessible bool
	AgentAccessible    bool
	Type               PathType
}

// Permits reports whether an actor with the given role may take the path. System actors may take every path.
func (p AllowedPath) Permits(role Role) bool {
	switch role {
	case RoleSystem:
		return true
	case RoleCustomer:
		return p.CustomerAccessible
	case RoleAgent:
		return p.AgentAccessible
	default:
		return false
	}
}

type pathKey struct {
	origin      StatusCode
	destination StatusCode
}

// Schema is the immutable set of allowed paths of one workflow. Use SchemaBuilder to construct one.
type Schema struct {
	name     string
	paths    []AllowedPath
	index    map[pathKey]int
	initial  []StatusCode
	graph    *graph.Graph
	statuses *StatusRegistry
}

func (s *Schema) Name() string {
	return s.name
}

func (s *Schema) Statuses() *StatusRegistry {
	return s.statuses
}

// Paths returns every allowed path in declaration order.
func (s *Schema) Paths() []AllowedPath {
	return slices.Clone(s.paths)
}

func (s *Schema) Path(origin, destination StatusCode) (AllowedPath, bool) {
	i, ok := s.index[pathKey{origin: origin, destination: destination}]
	if !ok {
		return AllowedPath{}, false
	}

	return s.paths[i], true
}

// PathsFrom returns the paths leaving origin in declaration order.
func (s *Schema) PathsFrom(origin StatusCode) []AllowedPath {
	var paths []AllowedPath
	for _, to := range s.graph.Transitions(int(origin)) {
		p, _ := s.Path(origin, StatusCode(to))
		paths = append(paths, p)
	}

	return paths
}

func (s *Schema) HasSelfLoop(code StatusCode) bool {
	return s.graph.HasTransition(int(code), int(code))
}

// Contains reports whether code appears in any path of the schema.
func (s *Schema) Contains(code StatusCode) bool {
	return s.graph.IsValid(int(code))
}

func (s *Schema) IsDestination(code StatusCode) bool {
	return s.graph.IsDestination(int(code))
}

// IsTerminal reports whether no path leaves code.
func (s *Schema) IsTerminal(code StatusCode) bool {
	return s.graph.IsTerminal(int(code))
}

// InitialStatuses are the statuses an entity may be created in. When none were declared explicitly the statuses
// that no path leads into are used.
func (s *Schema) InitialStatuses() []StatusCode {
	return slices.Clone(s.initial)
}

func (s *Schema) IsInitial(code StatusCode) bool {
	return slices.Contains(s.initial, code)
}

// Codes returns every status referenced by the schema in the order it was first declared.
func (s *Schema) Codes() []StatusCode {
	var codes []StatusCode
	for _, n := range s.graph.Nodes() {
		codes = append(codes, StatusCode(n))
	}

	return codes
}

func (s *Schema) TerminalStatuses() []StatusCode {
	var codes []StatusCode
	for _, n := range s.graph.Info().TerminalNodes {
		codes = append(codes, StatusCode(n))
	}

	return codes
}
