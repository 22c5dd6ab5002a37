package statusflow

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// ValidateTransition checks that the schema allows moving from origin to destination and that the role may take
// that path. It has no side effects.
func ValidateTransition(s *Schema, origin, destination StatusCode, role Role) (AllowedPath, error) {
	meta := j.MKV{
		"workflow":    s.Name(),
		"origin":      origin.String(),
		"destination": destination.String(),
	}

	p, ok := s.Path(origin, destination)
	if !ok {
		return AllowedPath{}, errors.Wrap(ErrUnknownTransition, "", meta)
	}

	if !p.Permits(role) {
		meta["role"] = string(role)
		return AllowedPath{}, errors.Wrap(ErrForbiddenActor, "", meta)
	}

	return p, nil
}

// AvailableTransitions lists the paths leaving origin that role is permitted to take.
func AvailableTransitions(s *Schema, origin StatusCode, role Role) []AllowedPath {
	var paths []AllowedPath
	for _, p := range s.PathsFrom(origin) {
		if !p.Permits(role) {
			continue
		}

		paths = append(paths, p)
	}

	return paths
}
