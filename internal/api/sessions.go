package api

import (
	"net/http"
	"strconv"

	"bargain-engine/internal/engine"
)

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	session, err := s.authorizedSession(r, sid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, session)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sid, err := sessionID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.authorizedSession(r, sid); err != nil {
		writeErr(w, err)
		return
	}

	skip, limit := parseSkipLimit(r, 50, 200)
	entries, err := s.catalog.ListAudit(r.Context(), sid, skip, limit)
	if err != nil {
		writeErr(w, engine.ErrDegraded.Wrapf("list audit: %v", err))
		return
	}
	if entries == nil {
		entries = []engine.AuditEntry{}
	}
	writeJSON(w, entries)
}

// parseSkipLimit reads ?skip and ?limit with a default and a hard cap.
func parseSkipLimit(r *http.Request, defaultLimit, maxLimit int64) (skip, limit int64) {
	limit = defaultLimit
	if v := r.URL.Query().Get("skip"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			skip = n
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return skip, limit
}
