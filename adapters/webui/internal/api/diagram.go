package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/julo/statusflow"
)

type DiagramRequest struct {
	Workflow  string `json:"workflow"`
	Direction string `json:"direction"`
}

type SchemaFn func(workflow string) (*statusflow.Schema, error)

// Diagram responds with the mermaid state diagram of the requested workflow.
func Diagram(schema SchemaFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Bad Request: cannot read body", http.StatusBadRequest)
			return
		}

		var req DiagramRequest
		err = json.Unmarshal(body, &req)
		if err != nil {
			http.Error(w, "Bad Request: cannot unmarshal body", http.StatusBadRequest)
			return
		}

		s, err := schema(req.Workflow)
		if err != nil {
			http.Error(w, "unknown workflow", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		err = statusflow.MermaidDiagram(s, w, statusflow.MermaidDirection(req.Direction))
		if err != nil {
			http.Error(w, "failed to render diagram", http.StatusInternalServerError)
			return
		}
	}
}
