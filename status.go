package statusflow

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
)

// StatusCode is the numeric identifier of a status, e.g. 110 for FORM_SUBMITTED.
type StatusCode int

func (c StatusCode) String() string {
	return strconv.Itoa(int(c))
}

// Group is a coarse semantic grouping of statuses.
type Group string

const (
	GroupTerminal     Group = "terminal"
	GroupGraveyard    Group = "graveyard"
	GroupManualReview Group = "manual_review"
)

type Status struct {
	Code   StatusCode
	Label  string
	Groups []Group
}

// StatusRegistry is the read-only set of status codes known to the process. It is built once at startup and
// shared by every workflow schema.
type StatusRegistry struct {
	statuses map[StatusCode]Status
	order    []StatusCode
}

func NewStatusRegistry(statuses ...Status) (*StatusRegistry, error) {
	r := &StatusRegistry{
		statuses: make(map[StatusCode]Status, len(statuses)),
	}

	for _, s := range statuses {
		if s.Code <= 0 {
			return nil, errors.New("status code must be positive", j.MKV{"code": s.Code.String(), "label": s.Label})
		}

		if s.Label == "" {
			return nil, errors.New("status label is required", j.MKV{"code": s.Code.String()})
		}

		if existing, ok := r.statuses[s.Code]; ok {
			return nil, errors.New("status code registered twice", j.MKV{
				"code":           s.Code.String(),
				"label":          s.Label,
				"existing_label": existing.Label,
			})
		}

		r.statuses[s.Code] = s
		r.order = append(r.order, s.Code)
	}

	return r, nil
}

func (r *StatusRegistry) Lookup(code StatusCode) (Status, error) {
	s, ok := r.statuses[code]
	if !ok {
		return Status{}, errors.Wrap(ErrUnknownStatus, "", j.MKV{"code": code.String()})
	}

	return s, nil
}

// MustLookup panics when code is not registered. It is intended for wiring at startup.
func (r *StatusRegistry) MustLookup(code StatusCode) Status {
	s, err := r.Lookup(code)
	if err != nil {
		panic(err)
	}

	return s
}

func (r *StatusRegistry) IsValid(code StatusCode) bool {
	_, ok := r.statuses[code]
	return ok
}

// Label returns the label of the status, or a placeholder containing the code when it is not registered.
func (r *StatusRegistry) Label(code StatusCode) string {
	s, ok := r.statuses[code]
	if !ok {
		return fmt.Sprintf("UNKNOWN(%d)", code)
	}

	return s.Label
}

func (r *StatusRegistry) InGroup(code StatusCode, g Group) bool {
	s, ok := r.statuses[code]
	if !ok {
		return false
	}

	return slices.Contains(s.Groups, g)
}

// Codes returns the registered codes in registration order.
func (r *StatusRegistry) Codes() []StatusCode {
	return slices.Clone(r.order)
}

func (r *StatusRegistry) Group(g Group) []StatusCode {
	var codes []StatusCode
	for _, code := range r.order {
		if slices.Contains(r.statuses[code].Groups, g) {
			codes = append(codes, code)
		}
	}

	return codes
}
