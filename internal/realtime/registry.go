package realtime

import (
	"sync"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
	ws "github.com/studycircle/studycircle-backend/internal/websocket"
)

// Session is one authenticated WebSocket connection. A user may hold several
// sessions at once; each is tracked separately. Writes are serialized per
// session because the underlying connection allows a single writer.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	conn *gws.Conn
	mu   sync.Mutex
}

// NewSession wraps an upgraded connection.
func NewSession(userID uuid.UUID, conn *gws.Conn) *Session {
	return &Session{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
	}
}

// Write sends pre-marshaled bytes to the client.
func (s *Session) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteRaw(s.conn, data)
}

// WriteTyped sends a typed event to the client.
func (s *Session) WriteTyped(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

// WriteError sends a typed error event to the client.
func (s *Session) WriteError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteError(s.conn, msg)
}

// Registry tracks which sessions belong to which rooms. Rooms are keyed by
// their pub/sub channel name, so registry membership and Redis subscriptions
// line up one to one. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Session]struct{}
	// reverse index so a disconnect does not scan every room
	sessions map[*Session]map[string]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]map[string]struct{}),
	}
}

// Add places a session in a room. Returns true when the room had no local
// members before, meaning the caller should open the upstream subscription.
func (r *Registry) Add(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Session]struct{})
		r.rooms[room] = members
	}
	members[s] = struct{}{}

	if r.sessions[s] == nil {
		r.sessions[s] = make(map[string]struct{})
	}
	r.sessions[s][room] = struct{}{}

	return !ok
}

// Remove takes a session out of a room. Returns true when the room is now
// empty locally, meaning the caller should close the upstream subscription.
func (r *Registry) Remove(room string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(room, s)
}

func (r *Registry) removeLocked(room string, s *Session) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	delete(members, s)
	if set := r.sessions[s]; set != nil {
		delete(set, room)
		if len(set) == 0 {
			delete(r.sessions, s)
		}
	}
	if len(members) == 0 {
		delete(r.rooms, room)
		return true
	}
	return false
}

// RemoveAll drops a session from every room it joined and returns the rooms
// that became empty.
func (r *Registry) RemoveAll(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var emptied []string
	for room := range r.sessions[s] {
		if r.removeLocked(room, s) {
			emptied = append(emptied, room)
		}
	}
	return emptied
}

// Members returns a snapshot of the sessions in a room.
func (r *Registry) Members(room string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[room]
	out := make([]*Session, 0, len(members))
	for s := range members {
		out = append(out, s)
	}
	return out
}

// InRoom reports whether the session currently belongs to the room.
func (r *Registry) InRoom(room string, s *Session) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][s]
	return ok
}

// Rooms returns a snapshot of the rooms a session belongs to.
func (r *Registry) Rooms(s *Session) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.sessions[s]
	out := make([]string, 0, len(set))
	for room := range set {
		out = append(out, room)
	}
	return out
}
