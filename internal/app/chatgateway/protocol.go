package chatgateway

import (
	"encoding/json"
	"time"
)

// Event types accepted on the live channel.
const (
	EventJoinOrderChat  = "join_order_chat"
	EventLeaveOrderChat = "leave_order_chat"
	EventSendMessage    = "send_message"
	EventTyping         = "typing"
	EventMarkRead       = "mark_read"
)

// Event types pushed to clients.
const (
	EventNewMessage    = "new_message"
	EventMessageSent   = "message_sent"
	EventUserTyping    = "user_typing"
	EventMessagesRead  = "messages_read"
	EventNotification  = "notification"
	EventSystemMessage = "system_message"
	EventQueueUpdate   = "queue_update"
	EventError         = "error"
)

// ClientEnvelope is the single inbound frame shape; Type selects which
// fields matter.
type ClientEnvelope struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Content string `json:"content,omitempty"`
	Typing  bool   `json:"typing,omitempty"`
}

// NewMessageEvent carries a chat message to everyone in the room but the sender.
type NewMessageEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// MessageSentEvent acknowledges a send back to the originating connection.
type MessageSentEvent struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"orderId"`
	MessageID int64     `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// UserTypingEvent signals the counterpart party's typing state.
type UserTypingEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Role    string `json:"role"`
	Typing  bool   `json:"typing"`
}

// MessagesReadEvent tells the other party their messages were read.
type MessagesReadEvent struct {
	Type    string    `json:"type"`
	OrderID string    `json:"orderId"`
	Role    string    `json:"role"`
	ReadAt  time.Time `json:"readAt"`
}

// NotificationEvent is a lightweight signal; badge notifications reach a
// customer's connections whose viewport is on another order.
type NotificationEvent struct {
	Type             string `json:"type"`
	NotificationType string `json:"notificationType"`
	OrderID          string `json:"orderId"`
	Sender           string `json:"sender"`
}

// SystemMessageEvent is a human-readable line rendered inline in the chat.
type SystemMessageEvent struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// QueueInfo is the position/eta pair shown next to an in-queue order.
type QueueInfo struct {
	Position      int    `json:"position"`
	EstimatedTime string `json:"estimatedTime"`
}

// QueueUpdateEvent pushes a fresh queue snapshot to a room.
type QueueUpdateEvent struct {
	Type      string     `json:"type"`
	OrderID   string     `json:"orderId"`
	InQueue   bool       `json:"inQueue"`
	Status    string     `json:"status"`
	QueueInfo *QueueInfo `json:"queueInfo,omitempty"`
}

// ErrorEvent reports a rejected frame back to its sender.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	OrderID string `json:"orderId,omitempty"`
	Error   string `json:"error"`
}

// encodeEvent marshals a server event; the payload shapes above cannot fail.
func encodeEvent(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
