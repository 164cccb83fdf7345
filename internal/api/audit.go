package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/gatekeeper/internal/audit"
	"github.com/nerrad567/gatekeeper/internal/auth"
)

// auditLog queues an admin action on the audit recorder (best-effort).
func (s *Server) auditLog(action, entityType, entityID, accountID string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(&audit.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		AccountID:  accountID,
		Source:     "api",
		Details:    details,
	})
}

func actorFromRequest(r *http.Request) (string, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	return actorID(p), ok
}

// handleListAuditLogs returns paginated audit entries.
//
// Query parameters:
//   - action: login_succeeded, account_locked, registry_sync, delete, ...
//   - entity_type: account, registry
//   - entity_id, account_id: exact match
//   - limit: max results (default 50, max 200)
//   - offset: pagination offset
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit logging not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		AccountID:  q.Get("account_id"),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit logs", "error", err)
		writeInternalError(w)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
