package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julo/statusflow"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type ListRequest struct {
	Workflow string `json:"workflow"`
	Status   int    `json:"status"`
	AfterID  string `json:"after_id"`
	Limit    int    `json:"limit"`
}

type ListResponse struct {
	Items []ListItem `json:"items"`
	// NextAfterID is the cursor for the next page. It is empty on the last page.
	NextAfterID string `json:"next_after_id"`
}

// ListItem is a flattened statusflow.Entity with its status label resolved.
type ListItem struct {
	Workflow    string    `json:"workflow"`
	EntityID    string    `json:"entity_id"`
	Status      int       `json:"status"`
	StatusLabel string    `json:"status_label"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ListEntities func(ctx context.Context, workflow string, status statusflow.StatusCode, afterID string, limit int) ([]statusflow.Entity, error)

type Labeler func(code statusflow.StatusCode) string

func List(listEntities ListEntities, label Labeler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Bad Request: cannot read body", http.StatusBadRequest)
			return
		}

		var req ListRequest
		err = json.Unmarshal(body, &req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Workflow == "" || req.Status == 0 {
			http.Error(w, "Bad Request: workflow and status are required", http.StatusBadRequest)
			return
		}

		limit := req.Limit
		if limit <= 0 {
			limit = defaultLimit
		}
		limit = min(limit, maxLimit)

		list, err := listEntities(r.Context(), req.Workflow, statusflow.StatusCode(req.Status), req.AfterID, limit)
		if err != nil {
			http.Error(w, "failed to collect entities from store", http.StatusInternalServerError)
			return
		}

		resp := ListResponse{
			Items: make([]ListItem, 0, len(list)),
		}
		for _, e := range list {
			resp.Items = append(resp.Items, ListItem{
				Workflow:    e.Workflow,
				EntityID:    e.ID,
				Status:      int(e.Status),
				StatusLabel: label(e.Status),
				Version:     e.Version,
				CreatedAt:   e.CreatedAt,
				UpdatedAt:   e.UpdatedAt,
			})
		}

		if len(list) == limit {
			resp.NextAfterID = list[len(list)-1].ID
		}

		b, err := json.MarshalIndent(resp, " ", " ")
		if err != nil {
			http.Error(w, "failed to json marshal list of entities", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}
