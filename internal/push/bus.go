// Package push receives real-time events from the push event bus so the
// client does not have to wait for the next reconciliation cycle.
package push

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/model"
	"github.com/plumeapp/plume/internal/ops"
)

// EventType identifies a push event
type EventType string

const (
	EventNotification  EventType = "notification"
	EventMessage       EventType = "message"
	EventPost          EventType = "post"
	EventMessageStatus EventType = "message_status"
	EventTyping        EventType = "typing"
	EventStopTyping    EventType = "stop_typing"
)

// StatusUpdate is a delivery/read acknowledgement for one message
type StatusUpdate struct {
	ConversationID string              `json:"conversation_id"`
	MessageID      string              `json:"message_id"`
	Status         model.MessageStatus `json:"status"`
}

// Event is one decoded push frame. Exactly one payload field is set,
// matching Type.
type Event struct {
	Type           EventType           `json:"type"`
	Room           string              `json:"room,omitempty"`
	Notification   *model.Notification `json:"notification,omitempty"`
	Message        *model.Message      `json:"message,omitempty"`
	Post           *model.Post         `json:"post,omitempty"`
	Status         *StatusUpdate       `json:"status,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
}

// roomControl is the join/leave frame sent to the bus
type roomControl struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// Bus is a websocket client for the push event bus
type Bus struct {
	url     string
	timeout time.Duration
	logger  *ops.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	joined map[string]bool
}

// New creates a bus client from config
func New(cfg *config.Push, logger *ops.Logger) *Bus {
	return &Bus{
		url:     cfg.URL,
		timeout: time.Duration(cfg.TimeoutMs) * time.Millisecond,
		logger:  logger.WithComponent("push"),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		joined:  make(map[string]bool),
	}
}

// Connect dials the bus and starts the read loop. The token authenticates
// the session; rooms must still be joined explicitly.
func (b *Bus) Connect(ctx context.Context, token string) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := &websocket.Dialer{HandshakeTimeout: b.timeout}
	conn, _, err := dialer.DialContext(ctx, b.url, header)
	if err != nil {
		b.logger.LogPushConnection(b.url, false, err)
		return fmt.Errorf("failed to connect to push bus: %w", err)
	}

	b.conn = conn
	b.logger.LogPushConnection(b.url, true, nil)

	go b.readLoop()
	return nil
}

// Events returns the channel of decoded push events. It is closed when
// the connection ends.
func (b *Bus) Events() <-chan Event {
	return b.events
}

// Join subscribes to a room. Called once per room on session start.
func (b *Bus) Join(room string) error {
	if err := b.writeControl("join", room); err != nil {
		return err
	}
	b.mu.Lock()
	b.joined[room] = true
	b.mu.Unlock()
	return nil
}

// Leave unsubscribes from a room. Called on session end.
func (b *Bus) Leave(room string) error {
	if err := b.writeControl("leave", room); err != nil {
		return err
	}
	b.mu.Lock()
	delete(b.joined, room)
	b.mu.Unlock()
	return nil
}

// LeaveAll leaves every joined room (session teardown)
func (b *Bus) LeaveAll() {
	b.mu.Lock()
	rooms := make([]string, 0, len(b.joined))
	for room := range b.joined {
		rooms = append(rooms, room)
	}
	b.mu.Unlock()

	for _, room := range rooms {
		// Best effort: the connection may already be gone
		_ = b.Leave(room)
	}
}

func (b *Bus) writeControl(action, room string) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if b.conn == nil {
		return fmt.Errorf("push bus not connected")
	}
	if err := b.conn.WriteJSON(roomControl{Action: action, Room: room}); err != nil {
		return fmt.Errorf("failed to %s room %s: %w", action, room, err)
	}
	return nil
}

func (b *Bus) readLoop() {
	defer close(b.events)

	for {
		var ev Event
		if err := b.conn.ReadJSON(&ev); err != nil {
			select {
			case <-b.done:
				// Clean shutdown
			default:
				b.logger.LogPushConnection(b.url, false, err)
			}
			return
		}

		b.logger.LogPushEvent(string(ev.Type), ev.Room)
		select {
		case b.events <- ev:
		default:
			// A consumer this far behind will re-derive state from the
			// next reconciliation cycle anyway
			b.logger.Warn("push event dropped, consumer backlogged",
				"type", ev.Type)
		}
	}
}

// Close tears the connection down and ends the read loop
func (b *Bus) Close() error {
	close(b.done)
	if b.conn == nil {
		return nil
	}

	b.writeMu.Lock()
	_ = b.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	b.writeMu.Unlock()

	return b.conn.Close()
}
