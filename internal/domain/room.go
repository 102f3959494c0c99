package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RoomID identifies a chat room. Assigned by the store on creation.
type RoomID int64

func (id RoomID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseRoomID parses a decimal room id.
func ParseRoomID(s string) (RoomID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidDestination
	}
	return RoomID(n), nil
}

// RoomKind distinguishes 1:1 rooms from group rooms.
type RoomKind string

const (
	RoomKindOneToOne RoomKind = "ONE_TO_ONE"
	RoomKindGroup    RoomKind = "GROUP"
)

// KindFor returns the room kind for a member set of the given size.
func KindFor(size int) RoomKind {
	if size == 2 {
		return RoomKindOneToOne
	}
	return RoomKindGroup
}

// ReadStatus is the binary read flag of a room summary.
type ReadStatus string

const (
	ReadStatusAllRead ReadStatus = "ALL_READ"
	ReadStatusUnread  ReadStatus = "UN_READ"
)

// Room is a conversation over an immutable member set.
type Room struct {
	ID        RoomID     `json:"roomId"`
	Kind      RoomKind   `json:"kind"`
	MemberIDs []MemberID `json:"memberIds"`
	CreatedAt time.Time  `json:"createdAt"`
}

// HasMember reports whether id belongs to the room.
func (r *Room) HasMember(id MemberID) bool {
	for _, m := range r.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Membership is the room x member edge. LastLeftAt is the read marker.
type Membership struct {
	RoomID     RoomID     `json:"roomId"`
	MemberID   MemberID   `json:"memberId"`
	LastLeftAt *time.Time `json:"lastLeftAt,omitempty"`
}

// RoomSummary is the derived room list view.
type RoomSummary struct {
	RoomID      RoomID     `json:"roomId"`
	Kind        RoomKind   `json:"kind"`
	MemberIDs   []MemberID `json:"memberIds"`
	ReadStatus  ReadStatus `json:"readStatus"`
	LastMessage string     `json:"lastMessage"`
}

// ResolveRoomRequest is the body of a room resolution call.
type ResolveRoomRequest struct {
	MemberIDs []int64 `json:"memberIds" binding:"required"`
}

// NormalizeMembers validates a requested member set and returns it sorted.
// Fewer than two distinct ids is ErrInsufficientParticipants; repeated ids
// in an otherwise valid set are ErrDuplicateMembers.
func NormalizeMembers(ids []MemberID) ([]MemberID, error) {
	seen := make(map[MemberID]struct{}, len(ids))
	dup := false
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			dup = true
			continue
		}
		seen[id] = struct{}{}
	}
	if len(seen) < 2 {
		return nil, ErrInsufficientParticipants
	}
	if dup {
		return nil, ErrDuplicateMembers
	}

	out := make([]MemberID, 0, len(seen))
	for id := range seen {
		if id <= 0 {
			return nil, ErrMemberNotFound
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// MemberKey is the canonical key of a sorted member set: the hex SHA-256 of
// the ascending ids joined by commas. It is stored under a unique index so
// that the store rejects a second room for the same set.
func MemberKey(sorted []MemberID) string {
	var b strings.Builder
	for i, id := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
