// Package definition loads status registries and workflow schemas from YAML documents so that product lines can
// describe their allowed paths without code changes.
package definition

import (
	"bytes"
	"io"
	"os"
	"strconv"

	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"
	"gopkg.in/yaml.v3"

	"github.com/julo/statusflow"
)

var ErrInvalidDefinition = errors.New("invalid workflow definition", j.C("ERR_2b0d6a8e41c7f3d5"))

// Document is the YAML representation of a set of statuses and the workflows built on them.
//
//	statuses:
//	  - {code: 110, label: FORM_SUBMITTED}
//	  - {code: 185, label: CUSTOMER_ON_DELETION, groups: [graveyard]}
//	workflows:
//	  - name: JuloOne
//	    initial: [110]
//	    paths:
//	      - {from: 110, to: 185, type: graveyard, customer: true, agent: true}
type Document struct {
	Statuses  []StatusDef   `yaml:"statuses"`
	Workflows []WorkflowDef `yaml:"workflows"`
}

type StatusDef struct {
	Code   int      `yaml:"code"`
	Label  string   `yaml:"label"`
	Groups []string `yaml:"groups,omitempty"`
}

type WorkflowDef struct {
	Name    string    `yaml:"name"`
	Initial []int     `yaml:"initial,omitempty"`
	Paths   []PathDef `yaml:"paths"`
}

type PathDef struct {
	From     int    `yaml:"from"`
	To       int    `yaml:"to"`
	Type     string `yaml:"type"`
	Customer bool   `yaml:"customer,omitempty"`
	Agent    bool   `yaml:"agent,omitempty"`
}

// Parse decodes a document. Unknown fields are rejected so that typos in flag names do not silently produce
// inaccessible paths.
func Parse(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc Document
	err := dec.Decode(&doc)
	if errors.Is(err, io.EOF) {
		return nil, errors.Wrap(ErrInvalidDefinition, "empty document")
	} else if err != nil {
		return nil, errors.Wrap(ErrInvalidDefinition, err.Error())
	}

	return &doc, nil
}

func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open definition", j.MKV{"path": path})
	}
	defer f.Close()

	return Parse(f)
}

// Build validates the document and returns the status registry and one schema per workflow, in document order.
func (d *Document) Build() (*statusflow.StatusRegistry, []*statusflow.Schema, error) {
	statuses := make([]statusflow.Status, 0, len(d.Statuses))
	for _, sd := range d.Statuses {
		groups, err := parseGroups(sd)
		if err != nil {
			return nil, nil, err
		}

		statuses = append(statuses, statusflow.Status{
			Code:   statusflow.StatusCode(sd.Code),
			Label:  sd.Label,
			Groups: groups,
		})
	}

	registry, err := statusflow.NewStatusRegistry(statuses...)
	if err != nil {
		return nil, nil, err
	}

	schemas := make([]*statusflow.Schema, 0, len(d.Workflows))
	for _, wd := range d.Workflows {
		s, err := wd.build(registry)
		if err != nil {
			return nil, nil, err
		}

		schemas = append(schemas, s)
	}

	return registry, schemas, nil
}

// Registry builds the document and binds the handlers in one step.
func (d *Document) Registry(bindings ...statusflow.HandlerBinding) (*statusflow.Registry, error) {
	statuses, schemas, err := d.Build()
	if err != nil {
		return nil, err
	}

	return statusflow.NewRegistry(statuses, schemas, bindings...)
}

func (wd WorkflowDef) build(statuses *statusflow.StatusRegistry) (*statusflow.Schema, error) {
	b := statusflow.NewSchemaBuilder(wd.Name, statuses)
	for i, pd := range wd.Paths {
		t, ok := statusflow.ParsePathType(pd.Type)
		if !ok {
			return nil, errors.Wrap(ErrInvalidDefinition, "unknown path type", j.MKV{
				"workflow":   wd.Name,
				"path_index": strconv.Itoa(i),
				"type":       pd.Type,
			})
		}

		b.Add(statusflow.AllowedPath{
			Origin:             statusflow.StatusCode(pd.From),
			Destination:        statusflow.StatusCode(pd.To),
			CustomerAccessible: pd.Customer,
			AgentAccessible:    pd.Agent,
			Type:               t,
		})
	}

	for _, code := range wd.Initial {
		b.AddInitial(statusflow.StatusCode(code))
	}

	return b.Build()
}

func parseGroups(sd StatusDef) ([]statusflow.Group, error) {
	var groups []statusflow.Group
	for _, g := range sd.Groups {
		switch group := statusflow.Group(g); group {
		case statusflow.GroupTerminal, statusflow.GroupGraveyard, statusflow.GroupManualReview:
			groups = append(groups, group)
		default:
			return nil, errors.Wrap(ErrInvalidDefinition, "unknown status group", j.MKV{
				"code":  strconv.Itoa(sd.Code),
				"group": g,
			})
		}
	}

	return groups, nil
}

// Marshal renders a document back to YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	err := enc.Encode(d)
	if err != nil {
		return nil, err
	}

	err = enc.Close()
	if err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// FromSchemas builds a document describing the given schemas, e.g. to export schemas declared in code.
func FromSchemas(statuses *statusflow.StatusRegistry, schemas ...*statusflow.Schema) *Document {
	var doc Document
	for _, code := range statuses.Codes() {
		s := statuses.MustLookup(code)

		sd := StatusDef{Code: int(code), Label: s.Label}
		for _, g := range s.Groups {
			sd.Groups = append(sd.Groups, string(g))
		}

		doc.Statuses = append(doc.Statuses, sd)
	}

	for _, s := range schemas {
		wd := WorkflowDef{Name: s.Name()}
		for _, code := range s.InitialStatuses() {
			wd.Initial = append(wd.Initial, int(code))
		}

		for _, p := range s.Paths() {
			wd.Paths = append(wd.Paths, PathDef{
				From:     int(p.Origin),
				To:       int(p.Destination),
				Type:     p.Type.String(),
				Customer: p.CustomerAccessible,
				Agent:    p.AgentAccessible,
			})
		}

		doc.Workflows = append(doc.Workflows, wd)
	}

	return &doc
}
