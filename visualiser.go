package statusflow

import (
	"io"
	"text/template"
)

// MermaidDiagram writes a mermaid state diagram of the schema to w. Paths are labelled with their type and
// statuses reached through graveyard paths are highlighted.
func MermaidDiagram(s *Schema, w io.Writer, d MermaidDirection) error {
	if d == UnknownDirection {
		d = LeftToRightDirection
	}

	mf := MermaidFormat{
		Name:      s.Name(),
		Direction: d,
	}

	graveyard := make(map[StatusCode]bool)
	for _, code := range s.Codes() {
		mf.States = append(mf.States, MermaidState{
			ID:    stateID(code),
			Label: code.String() + " " + s.Statuses().Label(code),
		})
	}

	for _, code := range s.InitialStatuses() {
		mf.StartingPoints = append(mf.StartingPoints, stateID(code))
	}

	for _, p := range s.Paths() {
		mf.Transitions = append(mf.Transitions, MermaidTransition{
			From: stateID(p.Origin),
			To:   stateID(p.Destination),
			Type: p.Type.String(),
		})

		if p.Type == PathTypeGraveyard && !graveyard[p.Destination] {
			graveyard[p.Destination] = true
			mf.Graveyard = append(mf.Graveyard, stateID(p.Destination))
		}
	}

	for _, code := range s.TerminalStatuses() {
		mf.TerminalPoints = append(mf.TerminalPoints, stateID(code))
	}

	return template.Must(template.New("").Parse(mermaidTemplate)).Execute(w, mf)
}

func stateID(code StatusCode) string {
	return "s" + code.String()
}

type MermaidFormat struct {
	Name           string
	Direction      MermaidDirection
	States         []MermaidState
	StartingPoints []string
	TerminalPoints []string
	Transitions    []MermaidTransition
	Graveyard      []string
}

type MermaidState struct {
	ID    string
	Label string
}

type MermaidDirection string

const (
	UnknownDirection     MermaidDirection = ""
	TopToBottomDirection MermaidDirection = "TB"
	LeftToRightDirection MermaidDirection = "LR"
	RightToLeftDirection MermaidDirection = "RL"
	BottomToTopDirection MermaidDirection = "BT"
)

type MermaidTransition struct {
	From string
	To   string
	Type string
}

var mermaidTemplate = "```" + `mermaid
---
title: {{.Name}}
---
stateDiagram-v2
	direction {{.Direction}}
	classDef graveyard fill:#f4cccc,stroke:#990000
	{{range .States }}
	state "{{.Label}}" as {{.ID}}
	{{- end }}
	{{range .StartingPoints }}
	[*]-->{{.}}
	{{- end }}
	{{range .Transitions }}
	{{.From}}-->{{.To}}: {{.Type}}
	{{- end }}
	{{range .TerminalPoints }}
	{{.}}-->[*]
	{{- end }}
	{{range .Graveyard }}
	class {{.}} graveyard
	{{- end }}
` + "```\n"
