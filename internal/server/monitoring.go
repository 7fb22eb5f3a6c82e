package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// handleMonitoringEnable serves POST /monitoring/enable/{user}?ttl_hours=N.
func (s *Server) handleMonitoringEnable(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}
	ttlHours := s.cfg.Flow.DefaultTTLHours
	if v := r.URL.Query().Get("ttl_hours"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			ttlHours = parsed
		}
	}
	s.monitoring.Enable(userID, time.Duration(ttlHours)*time.Hour)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "monitored": true, "ttl_hours": ttlHours})
}

// handleMonitoringDisable serves POST /monitoring/disable/{user}.
func (s *Server) handleMonitoringDisable(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}
	s.monitoring.Disable(userID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "monitored": false})
}

// handleMonitoringList serves GET /monitoring/list.
func (s *Server) handleMonitoringList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"registrations": s.monitoring.List()})
}

// handleMonitoringFlowsByUser serves GET /monitoring/flows/{user}?limit=N.
func (s *Server) handleMonitoringFlowsByUser(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	if userID == "" {
		http.Error(w, "user id required", http.StatusBadRequest)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	records, err := s.store.ListFlowsForUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "failed to list flows", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user_id": userID, "flows": records})
}

// handleMonitoringFlowsBySession serves GET /monitoring/flows/session/{session}.
func (s *Server) handleMonitoringFlowsBySession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session"]
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	if sess, ok := s.engine.Session(sessionID); ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"live":       true,
			"events":     s.tracker.Events(sessionID),
			"user_id":    sess.UserID,
		})
		return
	}
	rec, err := s.store.GetFlow(r.Context(), sessionID)
	if err != nil || rec == nil {
		http.Error(w, "flow not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session_id": sessionID, "live": false, "record": rec})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
