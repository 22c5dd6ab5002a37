package rest

import (
	"net/http"

	"github.com/luno/jettison/errors"

	"github.com/julo/statusflow"
)

type errorMapping struct {
	target error
	code   int
}

// Ordered: the first matching sentinel decides the status code.
var errorMappings = []errorMapping{
	{target: statusflow.ErrUnknownWorkflow, code: http.StatusNotFound},
	{target: statusflow.ErrEntityNotFound, code: http.StatusNotFound},
	{target: statusflow.ErrEntityExists, code: http.StatusConflict},
	{target: statusflow.ErrForbiddenActor, code: http.StatusForbidden},
	{target: statusflow.ErrUnknownTransition, code: http.StatusUnprocessableEntity},
	{target: statusflow.ErrInvalidInitial, code: http.StatusUnprocessableEntity},
	{target: statusflow.ErrUnknownStatus, code: http.StatusUnprocessableEntity},
	{target: statusflow.ErrHandlerVeto, code: http.StatusUnprocessableEntity},
	{target: statusflow.ErrDuplicateRequest, code: http.StatusConflict},
	{target: statusflow.ErrLockTimeout, code: http.StatusConflict},
	{target: statusflow.ErrStatusConflict, code: http.StatusConflict},
}

// classify returns the status code for err and the message of the sentinel it matched.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.code, m.target.Error()
		}
	}

	return http.StatusInternalServerError, "internal error"
}

// respondWithEngineError maps engine errors to responses. Vetoes carry the handler's reason. Unexpected errors are
// logged and hidden from the caller.
func (s *Server) respondWithEngineError(w http.ResponseWriter, r *http.Request, err error) {
	code, msg := classify(err)
	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), err)
	}

	if reason, ok := statusflow.VetoReason(err); ok {
		respondWithJSON(w, code, map[string]string{"error": msg, "reason": reason})
		return
	}

	respondWithError(w, code, msg)
}
