package chat

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// TypingTracker holds the per-conversation typing presence signal. It is
// not part of message history: the flag is set by a remote typing event
// and cleared by a stop event or a fixed timeout, whichever comes first.
type TypingTracker struct {
	timers  *xsync.MapOf[string, *time.Timer]
	timeout time.Duration
}

// NewTypingTracker creates a tracker clearing indicators after timeout
func NewTypingTracker(timeout time.Duration) *TypingTracker {
	return &TypingTracker{
		timers:  xsync.NewMapOf[string, *time.Timer](),
		timeout: timeout,
	}
}

// SetTyping marks the peer in a conversation as typing and re-arms the
// clear timeout
func (t *TypingTracker) SetTyping(conversationID string) {
	timer := time.AfterFunc(t.timeout, func() {
		t.timers.Delete(conversationID)
	})
	if old, ok := t.timers.LoadAndStore(conversationID, timer); ok {
		old.Stop()
	}
}

// StopTyping clears the indicator on an explicit stop event
func (t *TypingTracker) StopTyping(conversationID string) {
	if timer, ok := t.timers.LoadAndDelete(conversationID); ok {
		timer.Stop()
	}
}

// IsTyping reports whether the peer in a conversation is typing
func (t *TypingTracker) IsTyping(conversationID string) bool {
	_, ok := t.timers.Load(conversationID)
	return ok
}

// Reset cancels every pending timeout (conversation close / teardown)
func (t *TypingTracker) Reset() {
	t.timers.Range(func(id string, timer *time.Timer) bool {
		timer.Stop()
		t.timers.Delete(id)
		return true
	})
}
