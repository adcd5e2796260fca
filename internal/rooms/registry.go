package rooms

import (
	"sync"

	"go.uber.org/zap"
)

// Subscriber is the slice of a connected session the registry needs: a stable
// identifier and a non-blocking send. Implemented by the gateway session.
type Subscriber interface {
	SessionID() string
	Send(event string, payload any) error
}

// Registry is the process-wide room membership table. Rooms are created lazily
// on first join and garbage-collected when the last member leaves. A room's
// member set is always a subset of live sessions: LeaveAll runs on disconnect
// regardless of cause.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]Subscriber
	joined map[string]map[string]Key
	logger *zap.Logger
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[string]map[string]Subscriber),
		joined: make(map[string]map[string]Key),
		logger: logger,
	}
}

// Join subscribes the session to the room. Joining twice is a no-op beyond
// refreshing membership.
func (r *Registry) Join(key Key, session Subscriber) {
	if session == nil {
		return
	}
	roomID := key.String()
	sessionID := session.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]Subscriber)
		r.rooms[roomID] = members
	}
	members[sessionID] = session

	keys, ok := r.joined[sessionID]
	if !ok {
		keys = make(map[string]Key)
		r.joined[sessionID] = keys
	}
	keys[roomID] = key

	r.logger.Debug("session joined room",
		zap.String("room", roomID),
		zap.String("session_id", sessionID))
}

// Leave removes the session from one room.
func (r *Registry) Leave(key Key, session Subscriber) {
	if session == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(key.String(), session.SessionID())
}

// LeaveAll removes the session from every room it had joined. Invoked on
// disconnect whether the close was clean, errored, or a network drop.
func (r *Registry) LeaveAll(session Subscriber) {
	if session == nil {
		return
	}
	sessionID := session.SessionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID := range r.joined[sessionID] {
		r.removeLocked(roomID, sessionID)
	}
}

func (r *Registry) removeLocked(roomID, sessionID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if keys, ok := r.joined[sessionID]; ok {
		delete(keys, roomID)
		if len(keys) == 0 {
			delete(r.joined, sessionID)
		}
	}
}

// Broadcast delivers the event to every current member of the room except the
// originating session, so a mutation is never echoed back to its author.
func (r *Registry) Broadcast(key Key, exclude Subscriber, event string, payload any) {
	excludeID := ""
	if exclude != nil {
		excludeID = exclude.SessionID()
	}
	for _, member := range r.members(key, excludeID) {
		r.deliver(key, member, event, payload)
	}
}

// BroadcastAll delivers the event to every current member of the room,
// used for server-initiated pushes.
func (r *Registry) BroadcastAll(key Key, event string, payload any) {
	for _, member := range r.members(key, "") {
		r.deliver(key, member, event, payload)
	}
}

// MemberCount reports the current size of a room.
func (r *Registry) MemberCount(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key.String()])
}

func (r *Registry) members(key Key, excludeID string) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[key.String()]
	if len(room) == 0 {
		return nil
	}
	members := make([]Subscriber, 0, len(room))
	for sessionID, member := range room {
		if excludeID != "" && sessionID == excludeID {
			continue
		}
		members = append(members, member)
	}
	return members
}

func (r *Registry) deliver(key Key, member Subscriber, event string, payload any) {
	if err := member.Send(event, payload); err != nil {
		r.logger.Warn("room broadcast delivery failed",
			zap.String("room", key.String()),
			zap.String("session_id", member.SessionID()),
			zap.String("event", event),
			zap.Error(err))
	}
}
