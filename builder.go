package statusflow

import (
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow/internal/graph"
)

func NewSchemaBuilder(name string, statuses *StatusRegistry) *SchemaBuilder {
	return &SchemaBuilder{
		schema: &Schema{
			name:     name,
			index:    make(map[pathKey]int),
			graph:    graph.New(),
			statuses: statuses,
		},
	}
}

// SchemaBuilder collects allowed paths. The first invalid declaration is remembered and returned from Build so that
// schema definitions can be written as a single chain of calls.
type SchemaBuilder struct {
	schema *Schema
	err    error
}

type pathOptions struct {
	customer bool
	agent    bool
}

type PathOption func(po *pathOptions)

// CustomerAccessible allows customers to take the path.
func CustomerAccessible() PathOption {
	return func(po *pathOptions) {
		po.customer = true
	}
}

// AgentAccessible allows CRM agents to take the path.
func AgentAccessible() PathOption {
	return func(po *pathOptions) {
		po.agent = true
	}
}

func (b *SchemaBuilder) AddPath(origin, destination StatusCode, t PathType, opts ...PathOption) *SchemaBuilder {
	var po pathOptions
	for _, opt := range opts {
		opt(&po)
	}

	return b.Add(AllowedPath{
		Origin:             origin,
		Destination:        destination,
		CustomerAccessible: po.customer,
		AgentAccessible:    po.agent,
		Type:               t,
	})
}

func (b *SchemaBuilder) Add(p AllowedPath) *SchemaBuilder {
	if b.err != nil {
		return b
	}

	meta := j.MKV{
		"workflow":    b.schema.name,
		"origin":      p.Origin.String(),
		"destination": p.Destination.String(),
	}

	for _, code := range []StatusCode{p.Origin, p.Destination} {
		if !b.schema.statuses.IsValid(code) {
			meta["code"] = code.String()
			b.err = errors.Wrap(ErrUnknownStatus, "", meta)
			return b
		}
	}

	if !p.Type.Valid() {
		b.err = errors.New("path type is required", meta)
		return b
	}

	err := b.schema.graph.AddTransition(int(p.Origin), int(p.Destination))
	if err != nil {
		b.err = errors.Wrap(ErrDuplicatePath, "", meta)
		return b
	}

	b.schema.index[pathKey{origin: p.Origin, destination: p.Destination}] = len(b.schema.paths)
	b.schema.paths = append(b.schema.paths, p)
	return b
}

// AddInitial declares a status that entities of this workflow may be created in.
func (b *SchemaBuilder) AddInitial(codes ...StatusCode) *SchemaBuilder {
	if b.err != nil {
		return b
	}

	for _, code := range codes {
		if !b.schema.statuses.IsValid(code) {
			b.err = errors.Wrap(ErrUnknownStatus, "", j.MKV{
				"workflow": b.schema.name,
				"code":     code.String(),
			})
			return b
		}

		b.schema.initial = append(b.schema.initial, code)
	}

	return b
}

func (b *SchemaBuilder) Build() (*Schema, error) {
	if b.err != nil {
		return nil, b.err
	}

	if b.schema.name == "" {
		return nil, errors.New("workflow name is required")
	}

	if len(b.schema.paths) == 0 {
		return nil, errors.New("workflow has no paths", j.MKV{"workflow": b.schema.name})
	}

	for _, code := range b.schema.initial {
		if !b.schema.graph.IsValid(int(code)) {
			return nil, errors.Wrap(ErrInvalidInitial, "initial status has no paths", j.MKV{
				"workflow": b.schema.name,
				"code":     code.String(),
			})
		}
	}

	if len(b.schema.initial) == 0 {
		for _, n := range b.schema.graph.Info().StartingNodes {
			b.schema.initial = append(b.schema.initial, StatusCode(n))
		}
	}

	return b.schema, nil
}

// MustBuild panics if the schema is invalid. Intended for package level schema definitions.
func (b *SchemaBuilder) MustBuild() *Schema {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}

	return s
}
