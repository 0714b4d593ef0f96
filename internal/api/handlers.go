package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/court-rotation/internal/courtapi"
	"github.com/nerrad567/court-rotation/internal/rotation"
)

// handleHealth reports service liveness plus session store reachability.
// The store being down does not fail the probe; rotation degrades rather
// than dies, and the probe says which.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "unconfigured"
	if s.store != nil {
		storeStatus = "ok"
		if err := s.store.Ping(r.Context()); err != nil {
			storeStatus = "unreachable"
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"store":   storeStatus,
	})
}

// handleListCourts proxies the reservation service's court listing,
// keeping only courts that are visible and open for reservation.
func (s *Server) handleListCourts(w http.ResponseWriter, r *http.Request) {
	if s.courts == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUpstream, "court listing is not configured")
		return
	}
	courts, err := s.courts.ListCourts(r.Context())
	if err != nil {
		s.logger.Error("court listing failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "reservation service unavailable")
		return
	}
	open := make([]courtapi.Court, 0, len(courts))
	for _, c := range courts {
		if c.IsVisible && c.IsAvailable {
			open = append(open, c)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"courts": open, "count": len(open)})
}

// startRequest is the payload for POST /automation. Exactly one of
// CourtID and CourtIDs selects the session scope.
type startRequest struct {
	CourtID       string   `json:"courtId"`
	CourtIDs      []string `json:"courtIds"`
	DurationHours float64  `json:"durationHours"`
}

func (s *Server) handleStartAutomation(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.CourtID != "" && len(req.CourtIDs) > 0 {
		writeBadRequest(w, "provide courtId or courtIds, not both")
		return
	}

	ctx := r.Context()
	switch {
	case len(req.CourtIDs) > 0:
		sess, err := s.manager.StartMulti(ctx, req.CourtIDs, req.DurationHours)
		if err != nil {
			s.writeStartError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"sessionId": sess.SessionID,
			"scope":     rotation.ScopeMulti,
			"courts":    len(sess.Courts),
			"startTime": sess.StartTime,
			"endTime":   sess.EndTime,
		})
	case req.CourtID != "":
		sess, err := s.manager.Start(ctx, req.CourtID, req.DurationHours)
		if err != nil {
			s.writeStartError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"sessionId": sess.SessionID,
			"scope":     rotation.ScopeSingle,
			"courtId":   sess.CourtID,
			"startTime": sess.StartTime,
			"endTime":   sess.EndTime,
		})
	default:
		writeBadRequest(w, "courtId or courtIds is required")
	}
}

// writeStartError maps session start failures onto HTTP statuses.
func (s *Server) writeStartError(w http.ResponseWriter, err error) {
	var partial *rotation.PartialProvisioningError
	switch {
	case errors.Is(err, rotation.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, ErrCodeConflict, "automation is already running")
	case errors.Is(err, rotation.ErrInvalidDuration), errors.Is(err, rotation.ErrNoCourts):
		writeBadRequest(w, err.Error())
	case errors.As(err, &partial):
		s.logger.Error("user provisioning fell short", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, err.Error())
	case errors.Is(err, courtapi.ErrRequestFailed), errors.Is(err, courtapi.ErrRejected):
		s.logger.Error("reservation service rejected start", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUpstream, "reservation service refused the request")
	default:
		s.logger.Error("automation start failed", "error", err)
		writeInternalError(w, "failed to start automation")
	}
}

func (s *Server) handleStopAutomation(w http.ResponseWriter, r *http.Request) {
	result, err := s.manager.Stop(r.Context())
	if err != nil {
		s.logger.Error("automation stop failed", "error", err)
		writeInternalError(w, "failed to stop automation")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.manager.Status(r.Context())
	if err != nil {
		s.logger.Error("status read failed", "error", err)
		writeInternalError(w, "failed to read automation status")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	report := s.ticker.Trigger(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"action": report.Overall(),
		"single": report.Single,
		"multi":  report.Multi,
		"at":     report.At,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history is not enabled")
		return
	}
	records, err := s.history.Recent(r.Context(), queryLimit(r))
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) handleHistoryBySession(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "history is not enabled")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")
	records, err := s.history.BySession(r.Context(), sessionID, queryLimit(r))
	if err != nil {
		s.logger.Error("history query failed", "sessionId", sessionID, "error", err)
		writeInternalError(w, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func queryLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return limit
}
