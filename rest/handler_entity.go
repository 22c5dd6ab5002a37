package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/luno/jettison/errors"
	"github.com/luno/jettison/j"

	"github.com/julo/statusflow"
)

type EntityResponse struct {
	Workflow  string    `json:"workflow"`
	EntityID  string    `json:"entity_id"`
	Status    int       `json:"status"`
	Label     string    `json:"label"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type HistoryResponse struct {
	ID        string    `json:"id"`
	StatusOld int       `json:"status_old"`
	StatusNew int       `json:"status_new"`
	Reason    string    `json:"reason"`
	ActorID   string    `json:"actor_id"`
	ActorRole string    `json:"actor_role"`
	PathType  string    `json:"path_type"`
	CreatedAt time.Time `json:"created_at"`
}

type PathResponse struct {
	Destination int    `json:"destination"`
	Label       string `json:"label"`
	PathType    string `json:"path_type"`
}

type CreateEntityRequest struct {
	EntityID string `json:"entity_id"`
	Status   int    `json:"status"`
	Reason   string `json:"reason"`
}

type TransitionRequest struct {
	Destination int    `json:"destination"`
	Reason      string `json:"reason"`
	// NoWait fails straight away with 409 when another request holds the entity.
	NoWait bool `json:"no_wait"`
}

type TransitionResponse struct {
	Entity EntityResponse `json:"entity"`
	NoOp   bool           `json:"noop"`
	// Warning is set when the transition committed but a follow-up failed and was scheduled for retry.
	Warning   string `json:"warning,omitempty"`
	HistoryID string `json:"history_id,omitempty"`
}

func (s *Server) HandleCreateEntity(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	if req.EntityID == "" {
		respondWithError(w, http.StatusBadRequest, "entity_id is required")
		return
	}

	e, err := s.engine.Create(r.Context(), statusflow.CreateRequest{
		Workflow: mux.Vars(r)["workflow"],
		EntityID: req.EntityID,
		Initial:  statusflow.StatusCode(req.Status),
		Reason:   req.Reason,
		Actor:    actor,
	})
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, s.entityResponse(*e))
}

func (s *Server) HandleGetEntity(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	if !s.owns(w, r, actor, vars["workflow"], vars["id"]) {
		return
	}

	e, err := s.engine.Lookup(r.Context(), vars["workflow"], vars["id"])
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, s.entityResponse(*e))
}

func (s *Server) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	hs, err := s.engine.History(r.Context(), vars["workflow"], vars["id"])
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return
	}

	if actor.Role == statusflow.RoleCustomer && !createdBy(hs, actor) {
		respondWithError(w, http.StatusNotFound, statusflow.ErrEntityNotFound.Error())
		return
	}

	resp := make([]HistoryResponse, 0, len(hs))
	for _, h := range hs {
		resp = append(resp, HistoryResponse{
			ID:        h.ID,
			StatusOld: int(h.StatusOld),
			StatusNew: int(h.StatusNew),
			Reason:    h.ChangeReason,
			ActorID:   h.ChangedBy.ID,
			ActorRole: string(h.ChangedBy.Role),
			PathType:  h.PathType.String(),
			CreatedAt: h.CreatedAt,
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"history": resp})
}

// HandleAvailableTransitions lists the paths the caller may take from the entity's current status.
func (s *Server) HandleAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	vars := mux.Vars(r)
	if !s.owns(w, r, actor, vars["workflow"], vars["id"]) {
		return
	}

	paths, err := s.engine.AvailableTransitions(r.Context(), vars["workflow"], vars["id"], actor.Role)
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return
	}

	statuses := s.engine.Registry().Statuses()
	resp := make([]PathResponse, 0, len(paths))
	for _, p := range paths {
		resp = append(resp, PathResponse{
			Destination: int(p.Destination),
			Label:       statuses.Label(p.Destination),
			PathType:    p.Type.String(),
		})
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"transitions": resp})
}

func (s *Server) HandleApplyTransition(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	defer r.Body.Close()

	vars := mux.Vars(r)
	if !s.owns(w, r, actor, vars["workflow"], vars["id"]) {
		return
	}

	code, resp, err := s.apply(r, statusflow.TransitionRequest{
		Workflow:    vars["workflow"],
		EntityID:    vars["id"],
		Destination: statusflow.StatusCode(req.Destination),
		Reason:      req.Reason,
		Actor:       actor,
		NoWait:      req.NoWait,
	})
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return
	}

	respondWithJSON(w, code, resp)
}

// apply runs the transition and builds the response. A post hook failure still yields a response since the
// transition itself committed.
func (s *Server) apply(r *http.Request, req statusflow.TransitionRequest) (int, *TransitionResponse, error) {
	res, err := s.engine.Apply(r.Context(), req)
	if err != nil && !errors.Is(err, statusflow.ErrPostHookFailure) {
		return 0, nil, err
	}

	resp := &TransitionResponse{
		Entity: s.entityResponse(res.Entity),
		NoOp:   res.NoOp,
	}
	if res.History != nil {
		resp.HistoryID = res.History.ID
	}

	if err != nil {
		s.logger.Error(r.Context(), errors.Wrap(err, "transition committed with failed follow up", j.MKV{
			"workflow":  req.Workflow,
			"entity_id": req.EntityID,
		}))
		resp.Warning = "follow up scheduled for retry"
		return http.StatusAccepted, resp, nil
	}

	return http.StatusOK, resp, nil
}

// actor returns the caller as a customer, agent or system actor. Partners are only accepted on the webhook.
func (s *Server) actor(w http.ResponseWriter, r *http.Request) (statusflow.Actor, bool) {
	c, ok := ClaimsFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
		return statusflow.Actor{}, false
	}

	a := c.Actor()
	if !a.Role.Valid() {
		respondWithError(w, http.StatusForbidden, "role may not use this endpoint")
		return statusflow.Actor{}, false
	}

	return a, true
}

// owns reports whether actor may see the entity, responding with an error when it may not. Customers only see
// entities they created. Other customers' entities are reported as not found.
func (s *Server) owns(w http.ResponseWriter, r *http.Request, actor statusflow.Actor, workflow, id string) bool {
	if actor.Role != statusflow.RoleCustomer {
		return true
	}

	hs, err := s.engine.History(r.Context(), workflow, id)
	if err != nil {
		s.respondWithEngineError(w, r, err)
		return false
	}

	if !createdBy(hs, actor) {
		respondWithError(w, http.StatusNotFound, statusflow.ErrEntityNotFound.Error())
		return false
	}

	return true
}

// createdBy reports whether the first history row was written by actor.
func createdBy(hs []statusflow.History, actor statusflow.Actor) bool {
	return len(hs) > 0 && hs[0].ChangedBy.ID == actor.ID
}

func (s *Server) entityResponse(e statusflow.Entity) EntityResponse {
	return EntityResponse{
		Workflow:  e.Workflow,
		EntityID:  e.ID,
		Status:    int(e.Status),
		Label:     s.engine.Registry().Statuses().Label(e.Status),
		Version:   e.Version,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}
