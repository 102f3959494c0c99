package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Client -> server commands.
const (
	CommandConnect     = "CONNECT"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandMessage     = "MESSAGE"
	CommandDisconnect  = "DISCONNECT"
	CommandPing        = "PING"
)

// Server -> client commands. MESSAGE is shared with the inbound direction.
const (
	CommandConnected = "CONNECTED"
	CommandError     = "ERROR"
	CommandPong      = "PONG"
)

// CONNECT headers.
const (
	HeaderMemberID      = "member-id"
	HeaderAuthorization = "authorization"
)

// Destinations.
const (
	DestinationSend = "/send/message"
	roomPrefix      = "/room/"
	notifyPrefix    = "/notify/"
)

// Frame is the unit of the live channel protocol.
type Frame struct {
	Command     string            `json:"command"`
	Destination string            `json:"destination,omitempty"`
	ID          string            `json:"id,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

// Header returns a header value, matching names case-insensitively.
func (f *Frame) Header(name string) string {
	if v, ok := f.Headers[name]; ok {
		return v
	}
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// ErrorBody is the body of ERROR frames and of error responses.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectedBody is the body of the CONNECTED frame.
type ConnectedBody struct {
	ConnectionID string   `json:"connectionId"`
	MemberID     MemberID `json:"memberId"`
}

// NewErrorFrame builds an ERROR frame from err.
func NewErrorFrame(err error) *Frame {
	code, _ := ErrorCode(err)
	body, _ := json.Marshal(ErrorBody{Code: code, Message: PublicMessage(err)})
	return &Frame{Command: CommandError, Body: body}
}

// NewMessageFrame builds an outbound MESSAGE frame.
func NewMessageFrame(destination string, payload json.RawMessage) *Frame {
	return &Frame{Command: CommandMessage, Destination: destination, Body: payload}
}

// DestinationKind classifies a subscribe destination.
type DestinationKind int

const (
	DestinationUnknown DestinationKind = iota
	DestinationRoom
	DestinationNotify
)

// Destination is a parsed subscribe destination.
type Destination struct {
	Kind     DestinationKind
	RoomID   RoomID
	MemberID MemberID
}

func (d Destination) String() string {
	switch d.Kind {
	case DestinationRoom:
		return RoomDestination(d.RoomID)
	case DestinationNotify:
		return NotifyDestination(d.MemberID)
	default:
		return ""
	}
}

// ParseDestination parses /room/{roomId} and /notify/{memberId}.
func ParseDestination(s string) (Destination, error) {
	switch {
	case strings.HasPrefix(s, roomPrefix):
		id, err := ParseRoomID(strings.TrimPrefix(s, roomPrefix))
		if err != nil {
			return Destination{}, fmt.Errorf("%w: %s", ErrInvalidDestination, s)
		}
		return Destination{Kind: DestinationRoom, RoomID: id}, nil
	case strings.HasPrefix(s, notifyPrefix):
		id, err := ParseMemberID(strings.TrimPrefix(s, notifyPrefix))
		if err != nil {
			return Destination{}, fmt.Errorf("%w: %s", ErrInvalidDestination, s)
		}
		return Destination{Kind: DestinationNotify, MemberID: id}, nil
	default:
		return Destination{}, fmt.Errorf("%w: %s", ErrInvalidDestination, s)
	}
}

// RoomDestination is the live-stream destination of a room.
func RoomDestination(id RoomID) string {
	return roomPrefix + id.String()
}

// NotifyDestination is the personal notification destination of a member.
func NotifyDestination(id MemberID) string {
	return notifyPrefix + id.String()
}
