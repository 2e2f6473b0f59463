package api

import (
	"net/http"

	"github.com/platinummonkey/orgscope/pkg/audit"
	"github.com/platinummonkey/orgscope/pkg/httputil"
)

// Audit search pagination bounds.
const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// listAuditEvents handles GET /api/v1/audit/events. The trail spans the
// whole tree, so reading it gates on root admin.
func (s *Server) listAuditEvents(w http.ResponseWriter, r *http.Request) {
	actorID, ok := s.requireActor(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	if err := s.requireRootAdmin(ctx, actorID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	filter := audit.SearchFilter{
		ActorID:            httputil.ParseQueryString(r, "actor_id", ""),
		ResourceType:       audit.ResourceType(httputil.ParseQueryString(r, "resource_type", "")),
		ResourceID:         httputil.ParseQueryString(r, "resource_id", ""),
		ResourcePathPrefix: httputil.ParseQueryString(r, "path_prefix", ""),
	}

	start, err := httputil.ParseQueryTime(r, "start")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !start.IsZero() {
		filter.StartTime = &start
	}
	end, err := httputil.ParseQueryTime(r, "end")
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !end.IsZero() {
		filter.EndTime = &end
	}

	for _, et := range r.URL.Query()["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(et))
	}
	if statusStr := httputil.ParseQueryString(r, "status", ""); statusStr != "" {
		status := audit.EventStatus(statusStr)
		filter.Status = &status
	}

	filter.Limit, filter.Offset, err = httputil.ParsePagination(r, defaultAuditLimit, maxAuditLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	events, err := s.auditSearch.Search(ctx, filter)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, auditEventsResponse{Events: events, Count: len(events)})
}
