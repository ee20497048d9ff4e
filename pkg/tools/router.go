// Package tools routes authenticated callers to the tool servers their
// roles grant and issues the HTTP calls to those servers, including the
// cursor-driven auto-pagination of read queries.
package tools

import (
	"github.com/codeready-toolchain/aigateway/pkg/config"
	"github.com/codeready-toolchain/aigateway/pkg/models"
)

// Routing is the access decision for one caller: the servers they may
// consult and the names of those they may not. Both lists preserve the
// configuration declaration order so prompt assembly stays deterministic.
type Routing struct {
	Allowed []*config.ToolServer
	Denied  []string
}

// Route partitions the registry by role intersection. A server is allowed
// when at least one of its required roles is held by the caller.
func Route(reg *config.ToolServerRegistry, caller *models.CallerContext) Routing {
	var routing Routing
	for _, srv := range reg.All() {
		if srv.AccessibleTo(caller.Roles) {
			routing.Allowed = append(routing.Allowed, srv)
		} else {
			routing.Denied = append(routing.Denied, srv.Name)
		}
	}
	return routing
}

// AllowedNames returns the allowed server names in declaration order.
func (r Routing) AllowedNames() []string {
	names := make([]string, len(r.Allowed))
	for i, srv := range r.Allowed {
		names[i] = srv.Name
	}
	return names
}
