package domain

import (
	"strconv"
	"strings"
	"time"
)

// MessageID identifies a persisted message.
type MessageID int64

func (id MessageID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MessageType tags the body of a message. The core does not interpret it.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeImage MessageType = "IMAGE"
	MessageTypeEnter MessageType = "ENTER"
)

const maxMessageTypeLen = 32

// Message is an immutable chat message.
type Message struct {
	ID       MessageID   `json:"id"`
	RoomID   RoomID      `json:"roomId"`
	SenderID MemberID    `json:"senderId"`
	Body     string      `json:"body"`
	Type     MessageType `json:"type"`
	SentAt   time.Time   `json:"sentAt"`
}

// InboundMessage is the body of a MESSAGE frame sent to /send/message.
type InboundMessage struct {
	RoomID   RoomID      `json:"roomId"`
	SenderID MemberID    `json:"senderId"`
	Body     string      `json:"body"`
	Type     MessageType `json:"type"`
}

// Validate checks the inbound message shape and fills the default type.
func (m *InboundMessage) Validate() error {
	if m.RoomID <= 0 {
		return ErrRoomNotFound
	}
	if m.SenderID <= 0 {
		return ErrMemberNotFound
	}
	m.Type = MessageType(strings.ToUpper(strings.TrimSpace(string(m.Type))))
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	if len(m.Type) > maxMessageTypeLen {
		return ErrInvalidFrame
	}
	return nil
}
