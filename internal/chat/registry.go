package chat

import (
	"log/slog"
	"sync"
	"time"
)

// Registry tracks which sessions belong to which rooms and fans events
// out to room members. Membership mutation and the corresponding
// broadcast happen under one critical section, so a session never
// receives an event for a room it has already left and join/leave
// notifications are never lost mid-transition.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]map[*Session]string // room -> session -> username
	joined map[*Session]map[string]bool   // session -> joined rooms
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]map[*Session]string),
		joined: make(map[*Session]map[string]bool),
	}
}

// Join adds the session to the room and broadcasts user_joined to the
// room, including the joining session.
func (r *Registry) Join(s *Session, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room]; !ok {
		r.rooms[room] = make(map[*Session]string)
	}
	r.rooms[room][s] = username

	if _, ok := r.joined[s]; !ok {
		r.joined[s] = make(map[string]bool)
	}
	r.joined[s][room] = true

	r.broadcastLocked(room, EventUserJoined, UserJoinedPayload{
		Username:  username,
		Room:      room,
		Timestamp: time.Now().UTC(),
	})
	slog.Info("Session joined room", "session_id", s.ID, "username", username, "room", room)
}

// Leave removes the session from the room and broadcasts user_left to
// the remaining members. Leaving a room the session never joined is a
// no-op.
func (r *Registry) Leave(s *Session, username, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}
	if _, ok := members[s]; !ok {
		return
	}

	r.removeLocked(s, room)
	r.broadcastLocked(room, EventUserLeft, UserLeftPayload{Username: username, Room: room})
	slog.Info("Session left room", "session_id", s.ID, "username", username, "room", room)
}

// Disconnect removes the session from every room it joined, broadcasting
// exactly one user_left per room to the remaining members, and discards
// the session's bookkeeping. Atomic with respect to concurrent joins on
// the same session. Returns the rooms that were left.
func (r *Registry) Disconnect(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []string
	for room := range r.joined[s] {
		username := r.rooms[room][s]
		r.removeLocked(s, room)
		r.broadcastLocked(room, EventUserLeft, UserLeftPayload{Username: username, Room: room})
		left = append(left, room)
	}
	delete(r.joined, s)

	if len(left) > 0 {
		slog.Info("Session disconnected from rooms", "session_id", s.ID, "rooms", left)
	}
	return left
}

// Broadcast fans an event out to every current member of the room.
func (r *Registry) Broadcast(room, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(room, eventType, payload)
}

// MemberCount returns the number of sessions currently in the room.
func (r *Registry) MemberCount(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[room])
}

// Rooms returns the rooms the session currently belongs to.
func (r *Registry) Rooms(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var rooms []string
	for room := range r.joined[s] {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) removeLocked(s *Session, room string) {
	delete(r.rooms[room], s)
	if len(r.rooms[room]) == 0 {
		delete(r.rooms, room)
	}
	if set, ok := r.joined[s]; ok {
		delete(set, room)
		if len(set) == 0 {
			delete(r.joined, s)
		}
	}
}

// broadcastLocked encodes once and delivers to every member. Deliver is
// non-blocking, so holding the registry lock here cannot stall on a slow
// session.
func (r *Registry) broadcastLocked(room, eventType string, payload any) {
	members := r.rooms[room]
	if len(members) == 0 {
		return
	}

	frame, err := encodeEvent(eventType, payload)
	if err != nil {
		slog.Error("Failed to encode broadcast", "type", eventType, "room", room, "error", err)
		return
	}

	for s := range members {
		s.Deliver(frame)
	}
}
