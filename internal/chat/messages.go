// Package chat merges the three observable copies of a conversation --
// local echoes, push events, and polled history -- into one ordered,
// de-duplicated transcript per conversation.
package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plumeapp/plume/internal/model"
)

// Sender submits a message to the remote gateway and returns the
// confirmed server copy. Satisfied by *gateway.Client.
type Sender interface {
	SendMessage(ctx context.Context, conversationID, body string) (*model.Message, error)
}

// SendError is returned when a send fails. It carries the composed draft
// so the caller can refill the composer; no automatic retry happens.
type SendError struct {
	ConversationID string
	Draft          string
	Err            error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to conversation %s failed: %v", e.ConversationID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Manager owns the per-conversation message sequences
type Manager struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	inflight      map[string]model.Message // local placeholder id -> placeholder
	selfID        string

	clientSeq atomic.Int64
	sender    Sender
	typing    *TypingTracker
	now       func() time.Time
}

// NewManager creates a chat manager sending through the given Sender
func NewManager(sender Sender, typingTimeout time.Duration) *Manager {
	return &Manager{
		conversations: make(map[string]*model.Conversation),
		inflight:      make(map[string]model.Message),
		sender:        sender,
		typing:        NewTypingTracker(typingTimeout),
		now:           time.Now,
	}
}

// SetSelf records the current user's id, used to tell own messages from
// peer messages when counting unread
func (m *Manager) SetSelf(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selfID = userID
}

// Typing returns the typing-indicator tracker
func (m *Manager) Typing() *TypingTracker {
	return m.typing
}

// ReplaceAll swaps in the conversation collection from a reconciliation
// cycle. Message order inside each conversation is re-established here
// regardless of server-reported order. Placeholders for sends still in
// flight are restored so a racing cycle cannot make them vanish before
// their confirmation lands.
func (m *Manager) ReplaceAll(convs []model.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]*model.Conversation, len(convs))
	for i := range convs {
		conv := convs[i]
		sortMessages(conv.Messages)
		next[conv.ID] = &conv
	}

	for _, placeholder := range m.inflight {
		conv, ok := next[placeholder.ConversationID]
		if !ok {
			// A send can race a cycle in a conversation the fetch does
			// not carry yet; the placeholder still needs a home
			conv = &model.Conversation{ID: placeholder.ConversationID}
			next[placeholder.ConversationID] = conv
		}
		conv.Messages = upsert(conv.Messages, placeholder)
	}

	m.conversations = next
}

// Send runs the full message lifecycle: a placeholder with status sending
// is visible immediately, and the confirmed server copy replaces it when
// the network call resolves. On failure the placeholder turns failed and
// the returned SendError carries the draft.
func (m *Manager) Send(ctx context.Context, conversationID, body string) (*model.Message, error) {
	seq := m.clientSeq.Add(1)

	m.mu.Lock()
	placeholder := model.Message{
		ID:             fmt.Sprintf("local-%d", seq),
		ConversationID: conversationID,
		SenderID:       m.selfID,
		Body:           body,
		Status:         model.StatusSending,
		CreatedAt:      m.now(),
		ClientSeq:      seq,
	}
	conv := m.conversation(conversationID)
	conv.Messages = upsert(conv.Messages, placeholder)
	m.inflight[placeholder.ID] = placeholder
	m.mu.Unlock()

	confirmed, err := m.sender.SendMessage(ctx, conversationID, body)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inflight, placeholder.ID)

	if err != nil {
		m.markFailed(conversationID, placeholder.ID)
		return nil, &SendError{ConversationID: conversationID, Draft: body, Err: err}
	}

	msg := *confirmed
	msg.ConversationID = conversationID
	msg.ClientSeq = seq
	if msg.Status.Rank() < model.StatusSent.Rank() {
		msg.Status = model.StatusSent
	}

	conv = m.conversation(conversationID)
	conv.Messages = remove(conv.Messages, placeholder.ID)
	conv.Messages = upsert(conv.Messages, msg)
	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}

	return &msg, nil
}

// ApplyRemote merges one push-delivered message. A copy already present
// by server id is never re-inserted, only advanced in status.
func (m *Manager) ApplyRemote(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := m.conversation(msg.ConversationID)
	before := len(conv.Messages)
	conv.Messages = upsert(conv.Messages, msg)

	if msg.CreatedAt.After(conv.LastMessageAt) {
		conv.LastMessageAt = msg.CreatedAt
	}
	if len(conv.Messages) > before && msg.SenderID != m.selfID {
		conv.UnreadCount++
	}
}

// AdvanceStatus applies a delivery/read acknowledgement. Statuses only
// move forward.
func (m *Manager) AdvanceStatus(conversationID, messageID string, status model.MessageStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID != messageID {
			continue
		}
		if status.Rank() > conv.Messages[i].Status.Rank() {
			conv.Messages[i].Status = status
		}
		return
	}
}

// MarkRead clears the local unread counter for a conversation
func (m *Manager) MarkRead(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conv, ok := m.conversations[conversationID]; ok {
		conv.UnreadCount = 0
	}
}

// Messages returns a copy of the merged, ordered transcript
func (m *Manager) Messages(conversationID string) []model.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return nil
	}
	return append([]model.Message(nil), conv.Messages...)
}

// Conversations returns conversation copies ordered by most recent
// message first
func (m *Manager) Conversations() []model.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		c := *conv
		c.Messages = append([]model.Message(nil), conv.Messages...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageAt.After(out[j].LastMessageAt)
	})
	return out
}

// UnreadCount returns the local unread counter for a conversation
func (m *Manager) UnreadCount(conversationID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if conv, ok := m.conversations[conversationID]; ok {
		return conv.UnreadCount
	}
	return 0
}

// Reset drops all conversation state (logout boundary)
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = make(map[string]*model.Conversation)
	m.inflight = make(map[string]model.Message)
	m.typing.Reset()
}

// conversation returns the conversation, creating an empty record if the
// first sign of it is a message. Callers hold the lock.
func (m *Manager) conversation(id string) *model.Conversation {
	conv, ok := m.conversations[id]
	if !ok {
		conv = &model.Conversation{ID: id}
		m.conversations[id] = conv
	}
	return conv
}

func (m *Manager) markFailed(conversationID, messageID string) {
	conv, ok := m.conversations[conversationID]
	if !ok {
		return
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			conv.Messages[i].Status = model.StatusFailed
			return
		}
	}
}

// upsert inserts msg in transcript order, or updates the existing copy in
// place when the id is already present. An update only ever advances the
// status; it never moves the message or regresses its state.
func upsert(messages []model.Message, msg model.Message) []model.Message {
	for i := range messages {
		if messages[i].ID != msg.ID {
			continue
		}
		if msg.Status.Rank() > messages[i].Status.Rank() {
			messages[i].Status = msg.Status
		}
		return messages
	}

	messages = append(messages, msg)
	sortMessages(messages)
	return messages
}

func remove(messages []model.Message, id string) []model.Message {
	for i := range messages {
		if messages[i].ID == id {
			return append(messages[:i], messages[i+1:]...)
		}
	}
	return messages
}

// sortMessages orders ascending by (timestamp, client sequence, id),
// which keeps transcripts stable however the copies arrived
func sortMessages(messages []model.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Before(&messages[j])
	})
}
