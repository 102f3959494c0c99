package domain

import (
	"strconv"
	"time"
)

// MemberID identifies a member in the external member directory.
type MemberID int64

func (id MemberID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseMemberID parses a decimal member id. Zero and negative ids are rejected.
func ParseMemberID(s string) (MemberID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidCredential
	}
	return MemberID(n), nil
}

// Member is a directory entry. The chat core only needs its identity.
type Member struct {
	ID        MemberID  `json:"memberId"`
	CreatedAt time.Time `json:"createdAt"`
}

// RegisterMemberRequest registers a member id in the directory.
type RegisterMemberRequest struct {
	MemberID int64 `json:"memberId" binding:"required,min=1"`
}

// IssueTokenRequest asks for a token pair bound to a member.
type IssueTokenRequest struct {
	MemberID int64 `json:"memberId" binding:"required,min=1"`
}

// RefreshTokenRequest rotates a token pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// OnlineStatus reports whether a member holds a live connection somewhere.
type OnlineStatus struct {
	MemberID MemberID `json:"memberId"`
	Online   bool     `json:"online"`
	Instance string   `json:"instance,omitempty"`
}
