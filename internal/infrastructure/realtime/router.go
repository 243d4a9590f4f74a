package realtime

import (
	"sync"
)

// Router tracks the live Connection of each user on this node. A user has at
// most one: attaching a new connection closes the previous one.
type Router struct {
	mu           sync.RWMutex
	sessions     map[string]*Connection // connectionID -> connection
	userSessions map[string]string      // userID -> connectionID
}

// NewRouter constructs an initialized Router.
func NewRouter() *Router {
	return &Router{
		sessions:     make(map[string]*Connection),
		userSessions: make(map[string]string),
	}
}

// Attach registers conn for its user. A previous connection of the same user
// is removed and closed with CloseSessionReplaced after the swap.
func (r *Router) Attach(conn *Connection) {
	var previous *Connection

	r.mu.Lock()
	if existingID, ok := r.userSessions[conn.UserID]; ok {
		previous = r.sessions[existingID]
		r.detachLocked(existingID)
	}
	r.sessions[conn.ID] = conn
	r.userSessions[conn.UserID] = conn.ID
	r.mu.Unlock()

	if previous != nil {
		previous.Close(CloseSessionReplaced, "session replaced")
	}
}

// Detach removes conn if it is still tracked. It never removes a newer
// connection of the same user.
func (r *Router) Detach(conn *Connection) {
	r.mu.Lock()
	r.detachLocked(conn.ID)
	r.mu.Unlock()
}

// Deliver sends payload to the live connection of each user in userIDs and
// returns how many accepted it. Failures only affect the failing connection.
func (r *Router) Deliver(userIDs []string, payload []byte) int {
	r.mu.RLock()
	targets := make([]*Connection, 0, len(userIDs))
	for _, uid := range userIDs {
		if id, ok := r.userSessions[uid]; ok {
			if conn := r.sessions[id]; conn != nil {
				targets = append(targets, conn)
			}
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

// Connected reports whether userID has a live connection on this node.
func (r *Router) Connected(userID string) bool {
	r.mu.RLock()
	_, ok := r.userSessions[userID]
	r.mu.RUnlock()
	return ok
}

// Len returns the number of tracked connections.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close terminates all tracked connections and clears router state.
func (r *Router) Close() {
	r.mu.Lock()
	sessions := make([]*Connection, 0, len(r.sessions))
	for _, conn := range r.sessions {
		sessions = append(sessions, conn)
	}
	r.sessions = make(map[string]*Connection)
	r.userSessions = make(map[string]string)
	r.mu.Unlock()

	for _, conn := range sessions {
		conn.Close(CloseGoingAway, "router shutdown")
	}
}

func (r *Router) detachLocked(connectionID string) {
	conn, ok := r.sessions[connectionID]
	if !ok {
		return
	}
	delete(r.sessions, connectionID)
	if current, ok := r.userSessions[conn.UserID]; ok && current == connectionID {
		delete(r.userSessions, conn.UserID)
	}
}
