package api

import (
	"net/http"
	"time"

	"github.com/alertmon/alertd/internal/config"
	"github.com/alertmon/alertd/pkg/types"
)

// =============================================================================
// INGESTION
// =============================================================================

func (s *Server) handleReceiveAlert(w http.ResponseWriter, r *http.Request) {
	var incoming types.Alert
	if err := s.readJSON(r, &incoming); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	alert, err := s.engine.Receive(r.Context(), &incoming, s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())

	s.writeJSON(w, http.StatusCreated, map[string]any{
		"status": "ok",
		"id":     alert.ID,
		"alert":  alert,
	})
}

// =============================================================================
// POINT OPERATIONS
// =============================================================================

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.engine.GetAlert(r.Context(), r.PathValue("id"), s.customer(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"alert":  alert,
	})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteAlert(r.Context(), r.PathValue("id"), s.customer(r)); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRequest struct {
	Status types.Status `json:"status"`
	Text   string       `json:"text"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		s.writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	if err := s.engine.SetStatus(r.Context(), r.PathValue("id"), s.customer(r), req.Status, req.Text); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type tagRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) handleTagAlert(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tags) == 0 {
		s.writeError(w, http.StatusBadRequest, "tags are required")
		return
	}

	if err := s.engine.TagAlert(r.Context(), r.PathValue("id"), s.customer(r), req.Tags); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUntagAlert(w http.ResponseWriter, r *http.Request) {
	var req tagRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tags) == 0 {
		s.writeError(w, http.StatusBadRequest, "tags are required")
		return
	}

	if err := s.engine.UntagAlert(r.Context(), r.PathValue("id"), s.customer(r), req.Tags); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type attributesRequest struct {
	// Attributes maps keys to new values; a JSON null unsets the key.
	Attributes map[string]any `json:"attributes"`
}

func (s *Server) handleUpdateAttributes(w http.ResponseWriter, r *http.Request) {
	var req attributesRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Attributes) == 0 {
		s.writeError(w, http.StatusBadRequest, "attributes are required")
		return
	}

	changes := make(map[string]types.AttributeChange, len(req.Attributes))
	for key, value := range req.Attributes {
		if value == nil {
			changes[key] = types.UnsetAttribute()
		} else {
			changes[key] = types.SetAttribute(value)
		}
	}

	if err := s.engine.UpdateAttributes(r.Context(), r.PathValue("id"), s.customer(r), changes); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.invalidateAggregates(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SEARCH
// =============================================================================

// searchResponse is the alert search envelope.
type searchResponse struct {
	Status         string                 `json:"status"`
	Total          int                    `json:"total"`
	Page           int                    `json:"page"`
	PageSize       int                    `json:"pageSize"`
	Pages          int                    `json:"pages"`
	More           bool                   `json:"more"`
	Alerts         []types.Alert          `json:"alerts"`
	SeverityCounts map[types.Severity]int `json:"severityCounts"`
	StatusCounts   map[types.Status]int   `json:"statusCounts"`
	LastTime       time.Time              `json:"lastTime"`
}

func (s *Server) handleSearchAlerts(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	severityCounts, err := s.engine.CountsBySeverity(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	statusCounts, err := s.engine.CountsByStatus(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	total := 0
	for _, n := range severityCounts {
		total += n
	}
	pages := 0
	if q.PageSize > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	if total > 0 && q.Page > pages {
		s.writeError(w, http.StatusRequestedRangeNotSatisfiable,
			"page out of range: no results")
		return
	}

	alerts, err := s.engine.SearchAlerts(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	lastTime := q.AsOf
	for _, a := range alerts {
		if a.LastReceiveTime.After(lastTime) {
			lastTime = a.LastReceiveTime
		}
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}

	s.writeJSON(w, http.StatusOK, searchResponse{
		Status:         "ok",
		Total:          total,
		Page:           q.Page,
		PageSize:       q.PageSize,
		Pages:          pages,
		More:           q.Page < pages,
		Alerts:         alerts,
		SeverityCounts: severityCounts,
		StatusCounts:   statusCounts,
		LastTime:       lastTime,
	})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	history, err := s.engine.AlertHistory(r.Context(), q)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if history == nil {
		history = []types.HistoryRow{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"history": history,
	})
}

// =============================================================================
// AGGREGATIONS
// =============================================================================

func (s *Server) handleAlertCounts(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.cachedJSON(w, r, "counts:"+s.customer(r)+":"+r.URL.RawQuery, config.CacheTTLCounts, func() (any, error) {
		severityCounts, err := s.engine.CountsBySeverity(r.Context(), q)
		if err != nil {
			return nil, err
		}
		statusCounts, err := s.engine.CountsByStatus(r.Context(), q)
		if err != nil {
			return nil, err
		}
		total := 0
		for _, n := range severityCounts {
			total += n
		}
		return map[string]any{
			"status":         "ok",
			"total":          total,
			"severityCounts": severityCounts,
			"statusCounts":   statusCounts,
		}, nil
	})
}

const topNLimit = 10

func (s *Server) handleTopNCount(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	groupBy := groupByParam(q.GroupBy)

	s.cachedJSON(w, r, "top10:count:"+s.customer(r)+":"+r.URL.RawQuery, config.CacheTTLTopN, func() (any, error) {
		top, err := s.engine.TopN(r.Context(), q, groupBy, topNLimit)
		if err != nil {
			return nil, err
		}
		if top == nil {
			top = []types.TopNGroup{}
		}
		return map[string]any{"status": "ok", "top10": top}, nil
	})
}

func (s *Server) handleTopNFlapping(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	groupBy := groupByParam(q.GroupBy)

	s.cachedJSON(w, r, "top10:flapping:"+s.customer(r)+":"+r.URL.RawQuery, config.CacheTTLTopN, func() (any, error) {
		top, err := s.engine.TopNFlapping(r.Context(), q, groupBy, topNLimit)
		if err != nil {
			return nil, err
		}
		if top == nil {
			top = []types.TopNGroup{}
		}
		return map[string]any{"status": "ok", "top10": top}, nil
	})
}

func groupByParam(groupBy []string) string {
	if len(groupBy) > 0 {
		return groupBy[0]
	}
	return ""
}

func (s *Server) handleEnvironments(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.cachedJSON(w, r, "environments:"+s.customer(r)+":"+r.URL.RawQuery, config.CacheTTLEnvironments, func() (any, error) {
		envs, err := s.engine.Environments(r.Context(), q)
		if err != nil {
			return nil, err
		}
		if envs == nil {
			envs = []types.EnvironmentCount{}
		}
		return map[string]any{"status": "ok", "environments": envs}, nil
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	q, err := s.buildQuery(r)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	s.cachedJSON(w, r, "services:"+s.customer(r)+":"+r.URL.RawQuery, config.CacheTTLServices, func() (any, error) {
		svcs, err := s.engine.Services(r.Context(), q)
		if err != nil {
			return nil, err
		}
		if svcs == nil {
			svcs = []types.ServiceCount{}
		}
		return map[string]any{"status": "ok", "services": svcs}, nil
	})
}
