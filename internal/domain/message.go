package domain

import (
	"time"

	jsoniter "github.com/json-iterator/go"
)

// EventType names an event exchanged over a connection
type EventType string

const (
	// Client -> server
	EventAuthenticate   EventType = "authenticate"
	EventSendMessage    EventType = "send_message"
	EventTyping         EventType = "typing"
	EventStopTyping     EventType = "stop_typing"
	EventMarkAsRead     EventType = "mark_as_read"
	EventGetOnlineUsers EventType = "get_online_users"
	EventLogout         EventType = "logout"

	// Server -> client
	EventAuthenticated   EventType = "authenticated"
	EventReceiveMessage  EventType = "receive_message"
	EventMessageSent     EventType = "message_sent"
	EventUserTyping      EventType = "user_typing"
	EventMessagesRead    EventType = "messages_read"
	EventUserOnline      EventType = "user_online"
	EventUserOffline     EventType = "user_offline"
	EventOnlineUsersList EventType = "online_users_list"
	EventError           EventType = "error"
)

// IsInbound reports whether t is an event a client may send
func (t EventType) IsInbound() bool {
	switch t {
	case EventAuthenticate, EventSendMessage, EventTyping, EventStopTyping,
		EventMarkAsRead, EventGetOnlineUsers, EventLogout:
		return true
	default:
		return false
	}
}

// ContentType classifies a message body
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
)

// Envelope is the frame format in both directions
type Envelope struct {
	Type    EventType           `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// Message is a persisted, encrypted direct message
type Message struct {
	ID               string      `json:"id"`
	SenderID         string      `json:"sender_id"`
	ReceiverID       string      `json:"receiver_id"`
	ContentEncrypted string      `json:"content_encrypted"`
	ContentType      ContentType `json:"content_type"`
	FileName         *string     `json:"file_name,omitempty"`
	FileSize         *int64      `json:"file_size,omitempty"`
	IsRead           bool        `json:"is_read"`
	CreatedAt        time.Time   `json:"created_at"`
}

// NewMessage is what the router hands to the message store
type NewMessage struct {
	SenderID         string
	ReceiverID       string
	ContentEncrypted string
	ContentType      ContentType
	FileName         *string
	FileSize         *int64
}

// OutboundMessage is the payload of receive_message and message_sent
type OutboundMessage struct {
	ID          string      `json:"id"`
	FromUserID  string      `json:"fromUserId"`
	ToUserID    string      `json:"toUserId"`
	Content     string      `json:"content"`
	ContentType ContentType `json:"contentType"`
	FileName    *string     `json:"fileName,omitempty"`
	FileSize    *int64      `json:"fileSize,omitempty"`
	IsRead      bool        `json:"isRead"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// ==== Inbound payloads ====

// AuthenticatePayload carries the credential when it was not sent with the upgrade request
type AuthenticatePayload struct {
	Token string `json:"token" validate:"required"`
}

// SendMessagePayload is the payload of send_message
type SendMessagePayload struct {
	ToUserID    string      `json:"toUserId" validate:"required"`
	Content     string      `json:"content" validate:"required"`
	ContentType ContentType `json:"contentType,omitempty" validate:"omitempty,oneof=text image file"`
	FileName    *string     `json:"fileName,omitempty" validate:"omitempty,max=255"`
	FileSize    *int64      `json:"fileSize,omitempty" validate:"omitempty,gte=0"`
}

// TypingPayload is the payload of typing and stop_typing
type TypingPayload struct {
	ToUserID string `json:"toUserId" validate:"required"`
}

// MarkAsReadPayload is the payload of mark_as_read. An empty id set is a no-op.
type MarkAsReadPayload struct {
	MessageIDs []string `json:"messageIds" validate:"dive,required"`
	FromUserID string   `json:"fromUserId" validate:"required"`
}

// ==== Outbound payloads ====

// UserTypingPayload is the payload of user_typing
type UserTypingPayload struct {
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessagesReadPayload is the payload of messages_read
type MessagesReadPayload struct {
	MessageIDs []string `json:"messageIds"`
	ReadBy     string   `json:"readBy"`
}

// PresencePayload is the payload of user_online and user_offline
type PresencePayload struct {
	UserID string `json:"userId"`
}

// OnlineUsersPayload is the payload of online_users_list
type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

// AuthenticatedPayload acknowledges a successful in-band handshake
type AuthenticatedPayload struct {
	UserID string `json:"userId"`
}

// ErrorPayload is the payload of error
type ErrorPayload struct {
	Message string `json:"message"`
}
