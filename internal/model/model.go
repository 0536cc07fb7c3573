// Package model holds the domain types shared across the client core.
package model

import "time"

// User is the current-user profile as reported by the gateway
type User struct {
	ID            string         `json:"id"`
	Handle        string         `json:"handle"`
	DisplayName   string         `json:"display_name"`
	AvatarURL     string         `json:"avatar_url,omitempty"`
	Bio           string         `json:"bio,omitempty"`
	FollowingIDs  []string       `json:"following_ids,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
}

// Post is a single feed entry with its nested replies
type Post struct {
	ID         string         `json:"id"`
	AuthorID   string         `json:"author_id"`
	Content    string         `json:"content"`
	CreatedAt  time.Time      `json:"created_at"`
	Reactions  map[string]int `json:"reactions,omitempty"`
	Replies    []Post         `json:"replies,omitempty"`
	RepostOfID string         `json:"repost_of_id,omitempty"`
	ReplyToID  string         `json:"reply_to_id,omitempty"`
}

// Story is an ephemeral story entry
type Story struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	MediaURL  string    `json:"media_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notification is a server-created alertable event
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id"`
	PostID    string    `json:"post_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation is a chat thread with its merged message history
type Conversation struct {
	ID             string    `json:"id"`
	ParticipantIDs []string  `json:"participant_ids"`
	Messages       []Message `json:"messages"`
	LastMessageAt  time.Time `json:"last_message_at"`
	UnreadCount    int       `json:"unread_count"`
}

// MessageStatus models the lifecycle of a chat message.
// Statuses only ever advance; failed is terminal from sending.
type MessageStatus string

const (
	StatusSending      MessageStatus = "sending"
	StatusTransmitting MessageStatus = "transmitting"
	StatusSent         MessageStatus = "sent"
	StatusDelivered    MessageStatus = "delivered"
	StatusRead         MessageStatus = "read"
	StatusFailed       MessageStatus = "failed"
)

// Rank returns the position of the status in the forward-only lifecycle.
// Failed ranks below everything so it never overwrites a delivered copy.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSending:
		return 1
	case StatusTransmitting:
		return 2
	case StatusSent:
		return 3
	case StatusDelivered:
		return 4
	case StatusRead:
		return 5
	default:
		return 0
	}
}

// Message is one chat message observed through any of the three channels
// (local echo, push event, polled history).
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Body           string        `json:"body"`
	MediaURL       string        `json:"media_url,omitempty"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	ClientSeq      int64         `json:"client_seq,omitempty"` // tie-break only
}

// Before reports whether m sorts ahead of other in a transcript:
// ascending (timestamp, client sequence, id).
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	if m.ClientSeq != other.ClientSeq {
		return m.ClientSeq < other.ClientSeq
	}
	return m.ID < other.ID
}
