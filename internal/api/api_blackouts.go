package api

import (
	"net/http"

	"github.com/alertmon/alertd/pkg/types"
)

// blackoutResponse adds the derived window length in seconds to the
// serialized blackout.
type blackoutResponse struct {
	*types.Blackout
	Duration int `json:"duration"`
}

func newBlackoutResponse(b *types.Blackout) blackoutResponse {
	return blackoutResponse{
		Blackout: b,
		Duration: int(b.Duration().Seconds()),
	}
}

func (s *Server) handleCreateBlackout(w http.ResponseWriter, r *http.Request) {
	var blackout types.Blackout
	if err := s.readJSON(r, &blackout); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.engine.CreateBlackout(r.Context(), &blackout, s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"status":   "ok",
		"id":       created.ID,
		"blackout": newBlackoutResponse(created),
	})
}

func (s *Server) handleGetBlackout(w http.ResponseWriter, r *http.Request) {
	blackout, err := s.engine.GetBlackout(r.Context(), r.PathValue("id"), s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"blackout": newBlackoutResponse(blackout),
	})
}

func (s *Server) handleListBlackouts(w http.ResponseWriter, r *http.Request) {
	blackouts, err := s.engine.ListBlackouts(r.Context(), s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	out := make([]blackoutResponse, 0, len(blackouts))
	for i := range blackouts {
		out = append(out, newBlackoutResponse(&blackouts[i]))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"total":     len(out),
		"blackouts": out,
	})
}

func (s *Server) handleDeleteBlackout(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteBlackout(r.Context(), r.PathValue("id"), s.customer(r)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
