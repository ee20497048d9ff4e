package config

import "fmt"

// ToolServerRegistry stores tool-server configurations in declaration
// order. The list is read-only after construction, so lookups need no
// locking; the index map only accelerates Get/Has.
type ToolServerRegistry struct {
	servers []*ToolServer
	byName  map[string]*ToolServer
}

// NewToolServerRegistry builds a registry preserving the declaration order
// of the given servers.
func NewToolServerRegistry(servers []*ToolServer) *ToolServerRegistry {
	byName := make(map[string]*ToolServer, len(servers))
	for _, s := range servers {
		byName[s.Name] = s
	}
	return &ToolServerRegistry{servers: servers, byName: byName}
}

// Get retrieves a tool-server configuration by name.
func (r *ToolServerRegistry) Get(name string) (*ToolServer, error) {
	s, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, name)
	}
	return s, nil
}

// Has reports whether a server with the given name is configured.
func (r *ToolServerRegistry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// All returns the servers in declaration order. Callers must not mutate
// the returned slice or its elements.
func (r *ToolServerRegistry) All() []*ToolServer {
	return r.servers
}

// Names returns the server names in declaration order.
func (r *ToolServerRegistry) Names() []string {
	names := make([]string, len(r.servers))
	for i, s := range r.servers {
		names[i] = s.Name
	}
	return names
}

// Len returns the number of configured servers.
func (r *ToolServerRegistry) Len() int {
	return len(r.servers)
}
