package frontend

import (
	"embed"
	"html/template"
	"net/http"
)

// Embed the template file
//
//go:embed home.html
var templateFS embed.FS

var home = template.Must(template.ParseFS(templateFS, "home.html"))

func HomeHandlerFunc(paths Paths, workflows []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := home.Execute(w, struct {
			Paths     Paths
			Workflows []string
		}{
			Paths:     paths,
			Workflows: workflows,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}

type Paths struct {
	List    string
	History string
	Diagram string
}
