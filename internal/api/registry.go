package api

import (
	"net/http"
)

// handleRegistrySync re-applies the route manifest and reloads the
// permission snapshot. Only additions are made; existing bindings stay.
func (s *Server) handleRegistrySync(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromRequest(r)

	report, err := s.registry.Sync(r.Context(), s.manifest)
	if err != nil {
		s.logger.Error("registry sync failed", "error", err)
		writeInternalError(w)
		return
	}

	details := map[string]any{
		"roles_added":    report.RolesAdded,
		"routes_added":   report.RoutesAdded,
		"bindings_added": report.BindingsAdded,
		"unresolved":     len(report.Unresolved),
	}
	s.auditLog("registry_sync", "registry", "", actor, details)

	details["routes_indexed"] = s.registry.Size()
	details["duration_ms"] = report.Duration.Milliseconds()
	writeJSON(w, http.StatusOK, details)
}
