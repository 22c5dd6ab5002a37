package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/patrickmn/go-cache"

	"github.com/julo/statusflow"
	"github.com/julo/statusflow/internal/metrics"
)

// WebhookRequest is posted by partners when an entity changes state on their side, e.g. BCA confirming an
// autodebet registration. DeliveryID is unique per delivery and repeated on redelivery.
type WebhookRequest struct {
	DeliveryID string `json:"delivery_id"`
	Workflow   string `json:"workflow"`
	EntityID   string `json:"entity_id"`
	Status     int    `json:"status"`
	Reason     string `json:"reason"`
}

type WebhookResponse struct {
	TransitionResponse
	Duplicate bool `json:"duplicate"`
}

type delivery struct {
	done bool
	code int
	resp TransitionResponse
}

// HandleWebhook applies a partner status update as a system actor named after the partner. Deliveries are
// remembered by id so that a redelivery is answered with the original response instead of being applied again.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	partner := mux.Vars(r)["partner"]

	c, ok := ClaimsFrom(r.Context())
	if !ok || statusflow.Role(c.Role) != RolePartner || c.Subject != partner {
		respondWithError(w, http.StatusForbidden, "token does not belong to partner")
		return
	}

	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if req.DeliveryID == "" || req.EntityID == "" || req.Workflow == "" {
		respondWithError(w, http.StatusBadRequest, "delivery_id, workflow and entity_id are required")
		return
	}

	if !s.partners[partner][req.Workflow] {
		metrics.WebhookDeliveries.WithLabelValues(partner, "rejected").Inc()
		respondWithError(w, http.StatusForbidden, "partner may not update workflow")
		return
	}

	key := partner + ":" + req.DeliveryID
	err := s.deliveries.Add(key, &delivery{}, cache.DefaultExpiration)
	if err != nil {
		s.respondDuplicate(w, partner, key)
		return
	}

	code, resp, err := s.apply(r, statusflow.TransitionRequest{
		Workflow:    req.Workflow,
		EntityID:    req.EntityID,
		Destination: statusflow.StatusCode(req.Status),
		Reason:      req.Reason,
		Actor:       statusflow.SystemActor("partner:" + partner),
	})
	if err != nil {
		// Only successful deliveries are remembered so the partner can redeliver after a failure.
		s.deliveries.Delete(key)

		outcome := "rejected"
		if code, _ := classify(err); code == http.StatusInternalServerError || code == http.StatusConflict {
			outcome = "failed"
		}
		metrics.WebhookDeliveries.WithLabelValues(partner, outcome).Inc()

		s.respondWithEngineError(w, r, err)
		return
	}

	s.deliveries.Set(key, &delivery{done: true, code: code, resp: *resp}, cache.DefaultExpiration)
	metrics.WebhookDeliveries.WithLabelValues(partner, "applied").Inc()

	respondWithJSON(w, code, WebhookResponse{TransitionResponse: *resp})
}

func (s *Server) respondDuplicate(w http.ResponseWriter, partner, key string) {
	v, ok := s.deliveries.Get(key)
	d, _ := v.(*delivery)
	if !ok || d == nil || !d.done {
		respondWithError(w, http.StatusConflict, "delivery is being processed")
		return
	}

	metrics.WebhookDeliveries.WithLabelValues(partner, "duplicate").Inc()
	respondWithJSON(w, d.code, WebhookResponse{TransitionResponse: d.resp, Duplicate: true})
}
