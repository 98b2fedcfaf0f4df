package realtime

import (
	"sync"
)

// Router tracks live connections and delivers payloads to them. It is pure
// transport: room membership is owned by the engine, which hands this router
// the connection ids to fan out to. An identity may hold several concurrent
// connections.
type Router struct {
	mu     sync.RWMutex
	conns  map[string]*Connection         // connectionID -> connection
	byUser map[string]map[string]struct{} // username -> set of connectionIDs
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Attach registers a connection and starts its write loop.
func (r *Router) Attach(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	set := r.byUser[conn.Username]
	if set == nil {
		set = make(map[string]struct{})
		r.byUser[conn.Username] = set
	}
	set[conn.ID] = struct{}{}
	r.mu.Unlock()

	conn.Start()
}

// Detach removes a connection if it is still tracked.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.detachLocked(conn.ID)
	r.mu.Unlock()
}

// Deliver writes payload to the given connections, returning how many sends
// were accepted.
func (r *Router) Deliver(connIDs []string, payload []byte) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(connIDs))
	for _, id := range connIDs {
		if conn := r.conns[id]; conn != nil {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// DeliverAll writes payload to every tracked connection.
func (r *Router) DeliverAll(payload []byte) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Notify delivers payload to one connection.
func (r *Router) Notify(connID string, payload []byte) bool {
	r.mu.RLock()
	conn := r.conns[connID]
	r.mu.RUnlock()
	if conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// NotifyUser delivers payload to every connection of the given identity.
func (r *Router) NotifyUser(username string, payload []byte) int {
	r.mu.RLock()
	var targets []*Connection
	for id := range r.byUser[username] {
		if conn := r.conns[id]; conn != nil {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// CloseUser terminates every connection of the given identity, used when a
// site ban or account deletion forces a disconnect.
func (r *Router) CloseUser(username string, code int, reason string) {
	r.mu.Lock()
	var targets []*Connection
	for id := range r.byUser[username] {
		if conn := r.conns[id]; conn != nil {
			targets = append(targets, conn)
		}
		r.detachLocked(id)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		conn.Close(code, reason)
	}
}

// RenameUser rewrites the identity index after an identifier rename. The
// Connection structs keep their original Username; the index is what delivery
// consults.
func (r *Router) RenameUser(old, new string) {
	r.mu.Lock()
	if set, ok := r.byUser[old]; ok {
		delete(r.byUser, old)
		dst := r.byUser[new]
		if dst == nil {
			dst = make(map[string]struct{}, len(set))
			r.byUser[new] = dst
		}
		for id := range set {
			dst[id] = struct{}{}
			if conn := r.conns[id]; conn != nil {
				conn.Username = new
			}
		}
	}
	r.mu.Unlock()
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	r.conns = make(map[string]*Connection)
	r.byUser = make(map[string]map[string]struct{})
	r.mu.Unlock()

	for _, conn := range targets {
		conn.Close(1001, "router shutdown")
	}
}

func (r *Router) detachLocked(connID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	if set, ok := r.byUser[conn.Username]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, conn.Username)
		}
	}
}
