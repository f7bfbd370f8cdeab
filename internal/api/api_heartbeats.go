package api

import (
	"net/http"

	"github.com/alertmon/alertd/pkg/types"
)

func (s *Server) handleReceiveHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb types.Heartbeat
	if err := s.readJSON(r, &hb); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	stored, err := s.engine.ReceiveHeartbeat(r.Context(), &hb, s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"status":    "ok",
		"id":        stored.ID,
		"heartbeat": stored,
	})
}

func (s *Server) handleGetHeartbeat(w http.ResponseWriter, r *http.Request) {
	hb, err := s.engine.GetHeartbeat(r.Context(), r.PathValue("id"), s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"heartbeat": hb,
	})
}

func (s *Server) handleListHeartbeats(w http.ResponseWriter, r *http.Request) {
	heartbeats, err := s.engine.ListHeartbeats(r.Context(), s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if heartbeats == nil {
		heartbeats = []types.Heartbeat{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"total":      len(heartbeats),
		"heartbeats": heartbeats,
	})
}

func (s *Server) handleDeleteHeartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteHeartbeat(r.Context(), r.PathValue("id"), s.customer(r)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
