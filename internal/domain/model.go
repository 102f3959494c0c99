package domain

import (
	"time"
)

// MemberModel is the GORM model for the members directory table.
type MemberModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for MemberModel.
func (MemberModel) TableName() string {
	return "members"
}

// ToDomain converts MemberModel to domain Member.
func (m *MemberModel) ToDomain() *Member {
	return &Member{ID: MemberID(m.ID), CreatedAt: m.CreatedAt}
}

// RoomModel is the GORM model for chat_rooms. MemberKey is unique so two
// rooms can never share a member set.
type RoomModel struct {
	ID          int64             `gorm:"primaryKey;autoIncrement"`
	Kind        string            `gorm:"type:varchar(16);not null"`
	MemberKey   string            `gorm:"type:char(64);uniqueIndex;not null"`
	MemberCount int               `gorm:"not null"`
	CreatedAt   time.Time         `gorm:"autoCreateTime"`
	Memberships []MembershipModel `gorm:"foreignKey:RoomID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts RoomModel to domain Room. Memberships must be preloaded
// for MemberIDs to be filled.
func (m *RoomModel) ToDomain() *Room {
	ids := make([]MemberID, 0, len(m.Memberships))
	for _, ms := range m.Memberships {
		ids = append(ids, MemberID(ms.MemberID))
	}
	return &Room{
		ID:        RoomID(m.ID),
		Kind:      RoomKind(m.Kind),
		MemberIDs: ids,
		CreatedAt: m.CreatedAt,
	}
}

// MembershipModel is the GORM model for the room x member edge.
type MembershipModel struct {
	ID         int64      `gorm:"primaryKey;autoIncrement"`
	RoomID     int64      `gorm:"not null;uniqueIndex:idx_membership_room_member"`
	MemberID   int64      `gorm:"not null;uniqueIndex:idx_membership_room_member;index"`
	LastLeftAt *time.Time
}

// TableName specifies the table name for MembershipModel.
func (MembershipModel) TableName() string {
	return "memberships"
}

// ToDomain converts MembershipModel to domain Membership.
func (m *MembershipModel) ToDomain() *Membership {
	return &Membership{
		RoomID:     RoomID(m.RoomID),
		MemberID:   MemberID(m.MemberID),
		LastLeftAt: m.LastLeftAt,
	}
}

// MessageModel is the GORM model for messages.
type MessageModel struct {
	ID       int64     `gorm:"primaryKey;autoIncrement"`
	RoomID   int64     `gorm:"not null;index:idx_messages_room_sent,priority:1"`
	SenderID int64     `gorm:"not null;index"`
	Body     string    `gorm:"type:text;not null"`
	Type     string    `gorm:"type:varchar(32);not null"`
	SentAt   time.Time `gorm:"not null;index:idx_messages_room_sent,priority:2"`
}

// TableName specifies the table name for MessageModel.
func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts MessageModel to domain Message.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:       MessageID(m.ID),
		RoomID:   RoomID(m.RoomID),
		SenderID: MemberID(m.SenderID),
		Body:     m.Body,
		Type:     MessageType(m.Type),
		SentAt:   m.SentAt,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:       int64(msg.ID),
		RoomID:   int64(msg.RoomID),
		SenderID: int64(msg.SenderID),
		Body:     msg.Body,
		Type:     string(msg.Type),
		SentAt:   msg.SentAt,
	}
}

// Models lists every model for auto-migration.
func Models() []interface{} {
	return []interface{}{&MemberModel{}, &RoomModel{}, &MembershipModel{}, &MessageModel{}}
}
