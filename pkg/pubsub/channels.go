package pubsub

import "fmt"

// Channel naming conventions for cross-instance chat delivery.
const (
	// Room stream channels, one per room.
	ChannelRoom = "chat:room:%s"

	// Personal notification channels, one per member.
	ChannelNotify = "chat:notify:%s"

	PatternRoom   = "chat:room:*"
	PatternNotify = "chat:notify:*"
)

// Event types carried on the chat channels.
const (
	EventRoomMessage  = "room_message"
	EventNotification = "notification"
)

// RoomChannel returns the channel name for a room stream.
func RoomChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoom, roomID)
}

// NotifyChannel returns the channel name for a member's notifications.
func NotifyChannel(memberID string) string {
	return fmt.Sprintf(ChannelNotify, memberID)
}
