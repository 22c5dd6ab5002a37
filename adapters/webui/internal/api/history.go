package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julo/statusflow"
)

type HistoryRequest struct {
	Workflow string `json:"workflow"`
	EntityID string `json:"entity_id"`
}

type HistoryItem struct {
	ID             string    `json:"id"`
	StatusOld      int       `json:"status_old"`
	StatusOldLabel string    `json:"status_old_label"`
	StatusNew      int       `json:"status_new"`
	StatusNewLabel string    `json:"status_new_label"`
	Reason         string    `json:"reason"`
	ChangedBy      string    `json:"changed_by"`
	ChangedByRole  string    `json:"changed_by_role"`
	PathType       string    `json:"path_type"`
	CreatedAt      time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Items []HistoryItem `json:"items"`
}

type HistoryFn func(ctx context.Context, workflow, entityID string) ([]statusflow.History, error)

func History(history HistoryFn, label Labeler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Bad Request: cannot read body", http.StatusBadRequest)
			return
		}

		var req HistoryRequest
		err = json.Unmarshal(body, &req)
		if err != nil {
			http.Error(w, "Bad Request: cannot unmarshal body", http.StatusBadRequest)
			return
		}

		hs, err := history(r.Context(), req.Workflow, req.EntityID)
		if err != nil {
			http.Error(w, "failed to lookup history from store", http.StatusInternalServerError)
			return
		}

		resp := HistoryResponse{
			Items: make([]HistoryItem, 0, len(hs)),
		}
		for _, h := range hs {
			item := HistoryItem{
				ID:             h.ID,
				StatusOld:      int(h.StatusOld),
				StatusNew:      int(h.StatusNew),
				StatusNewLabel: label(h.StatusNew),
				Reason:         h.ChangeReason,
				ChangedBy:      h.ChangedBy.ID,
				ChangedByRole:  string(h.ChangedBy.Role),
				PathType:       h.PathType.String(),
				CreatedAt:      h.CreatedAt,
			}
			if h.StatusOld != 0 {
				item.StatusOldLabel = label(h.StatusOld)
			}

			resp.Items = append(resp.Items, item)
		}

		b, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, "failed to json marshal history", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}
