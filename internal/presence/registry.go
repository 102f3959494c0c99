package presence

import (
	"sync"

	"github.com/weiawesome/wes-io-live/chat-core/internal/domain"
)

const defaultShards = 32

// Stats is a point-in-time view of the registry.
type Stats struct {
	Members       int `json:"members"`
	Connections   int `json:"connections"`
	Subscriptions int `json:"subscriptions"`
}

// connRooms maps a connection id to the rooms it is subscribed to.
type connRooms map[string]map[domain.RoomID]struct{}

type shard struct {
	mu      sync.RWMutex
	members map[domain.MemberID]connRooms
}

// Registry records which member is viewing which room through which
// connection. A member is active in a room while at least one of its
// connections holds a subscription to it. State lives only in memory and
// is scoped to this process.
type Registry struct {
	shards []*shard
}

// NewRegistry creates an empty registry with n lock shards.
func NewRegistry(n int) *Registry {
	if n <= 0 {
		n = defaultShards
	}
	r := &Registry{shards: make([]*shard, n)}
	for i := range r.shards {
		r.shards[i] = &shard{members: make(map[domain.MemberID]connRooms)}
	}
	return r
}

func (r *Registry) shardFor(member domain.MemberID) *shard {
	idx := uint64(member) % uint64(len(r.shards))
	return r.shards[idx]
}

// Subscribe marks the member active in room through conn.
func (r *Registry) Subscribe(member domain.MemberID, conn string, room domain.RoomID) {
	s := r.shardFor(member)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.members[member]
	if !ok {
		conns = make(connRooms)
		s.members[member] = conns
	}
	rooms, ok := conns[conn]
	if !ok {
		rooms = make(map[domain.RoomID]struct{})
		conns[conn] = rooms
	}
	rooms[room] = struct{}{}
}

// Unsubscribe drops room from conn. It reports whether the member is still
// active in room through some other connection.
func (r *Registry) Unsubscribe(member domain.MemberID, conn string, room domain.RoomID) bool {
	s := r.shardFor(member)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.members[member]
	if !ok {
		return false
	}
	if rooms, ok := conns[conn]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(conns, conn)
		}
	}
	if len(conns) == 0 {
		delete(s.members, member)
		return false
	}
	return activeIn(conns, room)
}

// Disconnect drops every subscription held by conn and returns the rooms
// in which the member is no longer active. Unknown members or connections
// are a no-op.
func (r *Registry) Disconnect(member domain.MemberID, conn string) []domain.RoomID {
	s := r.shardFor(member)
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.members[member]
	if !ok {
		return nil
	}
	rooms, ok := conns[conn]
	if !ok {
		return nil
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(s.members, member)
	}

	var released []domain.RoomID
	for room := range rooms {
		if !activeIn(conns, room) {
			released = append(released, room)
		}
	}
	return released
}

// IsActiveIn reports whether the member has any connection subscribed to room.
func (r *Registry) IsActiveIn(member domain.MemberID, room domain.RoomID) bool {
	s := r.shardFor(member)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeIn(s.members[member], room)
}

// ActiveRooms returns the distinct rooms the member is active in.
func (r *Registry) ActiveRooms(member domain.MemberID) []domain.RoomID {
	s := r.shardFor(member)
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[domain.RoomID]struct{})
	for _, rooms := range s.members[member] {
		for room := range rooms {
			seen[room] = struct{}{}
		}
	}
	out := make([]domain.RoomID, 0, len(seen))
	for room := range seen {
		out = append(out, room)
	}
	return out
}

// Stats counts members, connections and subscriptions across all shards.
func (r *Registry) Stats() Stats {
	var st Stats
	for _, s := range r.shards {
		s.mu.RLock()
		st.Members += len(s.members)
		for _, conns := range s.members {
			st.Connections += len(conns)
			for _, rooms := range conns {
				st.Subscriptions += len(rooms)
			}
		}
		s.mu.RUnlock()
	}
	return st
}

func activeIn(conns connRooms, room domain.RoomID) bool {
	for _, rooms := range conns {
		if _, ok := rooms[room]; ok {
			return true
		}
	}
	return false
}
