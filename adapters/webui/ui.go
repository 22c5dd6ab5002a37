// Package webui is a small operations console for agents: it lists the entities sitting in a status, shows an
// entity's history and renders workflow diagrams.
package webui

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/adapters/webui/internal/api"
	"github.com/julo/statusflow/adapters/webui/internal/frontend"
)

type (
	ListEntities = api.ListEntities
	HistoryFn    = api.HistoryFn
	Labeler      = api.Labeler
	Paths        = frontend.Paths
)

func HomeHandlerFunc(paths Paths, workflows []string) http.HandlerFunc {
	return frontend.HomeHandlerFunc(paths, workflows)
}

func ListHandlerFunc(store statusflow.Store, statuses *statusflow.StatusRegistry) http.HandlerFunc {
	return api.List(store.List, statuses.Label)
}

func HistoryHandlerFunc(store statusflow.Store, statuses *statusflow.StatusRegistry) http.HandlerFunc {
	return api.History(store.History, statuses.Label)
}

func DiagramHandlerFunc(registry *statusflow.Registry) http.HandlerFunc {
	return api.Diagram(registry.Schema)
}

// NewHandler serves the console and its api. prefix is the path the handler is mounted under once any
// http.StripPrefix has been applied, e.g. "/ops".
func NewHandler(prefix string, registry *statusflow.Registry, store statusflow.Store) http.Handler {
	paths := Paths{
		List:    prefix + "/api/v1/list",
		History: prefix + "/api/v1/history",
		Diagram: prefix + "/api/v1/diagram",
	}

	router := mux.NewRouter()
	router.HandleFunc("/", HomeHandlerFunc(paths, registry.Workflows())).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/list", ListHandlerFunc(store, registry.Statuses())).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/history", HistoryHandlerFunc(store, registry.Statuses())).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/diagram", DiagramHandlerFunc(registry)).Methods(http.MethodPost)

	return router
}
