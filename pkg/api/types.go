package api

import (
	"github.com/platinummonkey/orgscope/pkg/audit"
)

// subtreeChangeResponse reports how many nodes a subtree-wide mutation
// touched.
type subtreeChangeResponse struct {
	AffectedNodes int64 `json:"affected_nodes"`
}

// auditEventsResponse wraps an audit search result page.
type auditEventsResponse struct {
	Events []*audit.AuditEvent `json:"events"`
	Count  int                 `json:"count"`
}
