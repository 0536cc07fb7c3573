package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/plumeapp/plume/internal/model"
)

// stubSender lets a test hold each network call open and resolve them in
// any order, which is how the interleaving bugs show up in the field.
type stubSender struct {
	mu       sync.Mutex
	calls    []*sendCall
	arrivals chan *sendCall
}

type sendCall struct {
	body    string
	release chan sendResult
}

type sendResult struct {
	msg *model.Message
	err error
}

func newStubSender() *stubSender {
	return &stubSender{arrivals: make(chan *sendCall, 16)}
}

func (s *stubSender) SendMessage(ctx context.Context, conversationID, body string) (*model.Message, error) {
	call := &sendCall{body: body, release: make(chan sendResult, 1)}
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
	s.arrivals <- call

	select {
	case res := <-call.release:
		return res.msg, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *stubSender) awaitCall(t *testing.T) *sendCall {
	t.Helper()
	select {
	case call := <-s.arrivals:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a send call")
		return nil
	}
}

func confirmed(id string, at time.Time) *model.Message {
	return &model.Message{ID: id, SenderID: "self", Body: "", Status: model.StatusSent, CreatedAt: at}
}

func newTestManager(sender Sender) *Manager {
	m := NewManager(sender, 50*time.Millisecond)
	m.SetSelf("self")
	return m
}

func TestSendLifecycle(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "c1", "hello")
		done <- err
	}()

	call := sender.awaitCall(t)

	// The placeholder is visible immediately, before the network resolves
	msgs := m.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message while sending, got %d", len(msgs))
	}
	if msgs[0].Status != model.StatusSending {
		t.Errorf("expected status sending, got %s", msgs[0].Status)
	}

	serverTime := time.Now().Round(time.Millisecond)
	srv := confirmed("m1", serverTime)
	srv.Body = call.body
	call.release <- sendResult{msg: srv}

	if err := <-done; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs = m.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("expected exactly 1 message after confirmation, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" || msgs[0].Status != model.StatusSent {
		t.Errorf("expected confirmed m1/sent, got %s/%s", msgs[0].ID, msgs[0].Status)
	}
}

func TestInterleavedSendsNoDuplicates(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	// Submit "a", "b", "c" in quick succession; every call is held open
	// until the next one has been submitted, then they resolve in
	// reverse order.
	var wg sync.WaitGroup
	bodies := []string{"a", "b", "c"}
	var calls []*sendCall
	for _, body := range bodies {
		body := body
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Send(context.Background(), "c1", body); err != nil {
				t.Errorf("Send(%q) error = %v", body, err)
			}
		}()
		calls = append(calls, sender.awaitCall(t))
	}

	// Server assigns the same millisecond to all three
	serverTime := time.Now().Round(time.Millisecond)
	serverIDs := map[string]string{"a": "ma", "b": "mb", "c": "mc"}
	for i := len(calls) - 1; i >= 0; i-- {
		call := calls[i]
		srv := confirmed(serverIDs[call.body], serverTime)
		srv.Body = call.body
		call.release <- sendResult{msg: srv}
	}
	wg.Wait()

	msgs := m.Messages("c1")
	if len(msgs) != 3 {
		t.Fatalf("expected exactly 3 messages, got %d", len(msgs))
	}

	seen := make(map[string]bool)
	for i, want := range []string{"a", "b", "c"} {
		if msgs[i].Body != want {
			t.Errorf("position %d: expected body %q, got %q", i, want, msgs[i].Body)
		}
		if msgs[i].Status != model.StatusSent {
			t.Errorf("message %q: expected sent, got %s", msgs[i].Body, msgs[i].Status)
		}
		if seen[msgs[i].ID] {
			t.Errorf("duplicate message id %s", msgs[i].ID)
		}
		seen[msgs[i].ID] = true
	}
}

func TestSendFailurePreservesDraft(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "c1", "doomed")
		done <- err
	}()

	call := sender.awaitCall(t)
	call.release <- sendResult{err: errors.New("boom")}

	err := <-done
	if err == nil {
		t.Fatal("expected an error")
	}
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SendError, got %T", err)
	}
	if se.Draft != "doomed" {
		t.Errorf("expected draft preserved, got %q", se.Draft)
	}

	msgs := m.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != model.StatusFailed {
		t.Errorf("expected a single failed placeholder, got %+v", msgs)
	}
}

func TestTripleChannelDeduplication(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "c1", "hi")
		done <- err
	}()
	call := sender.awaitCall(t)

	serverTime := time.Now().Round(time.Millisecond)
	srv := confirmed("m1", serverTime)
	srv.Body = "hi"
	call.release <- sendResult{msg: srv}
	if err := <-done; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// Channel 2: the push event broadcasting the same message
	m.ApplyRemote(model.Message{
		ID: "m1", ConversationID: "c1", SenderID: "self",
		Body: "hi", Status: model.StatusSent, CreatedAt: serverTime,
	})

	// Channel 3: the next poll re-fetches conversation history
	m.ReplaceAll([]model.Conversation{{
		ID:             "c1",
		ParticipantIDs: []string{"self", "peer"},
		Messages: []model.Message{{
			ID: "m1", ConversationID: "c1", SenderID: "self",
			Body: "hi", Status: model.StatusSent, CreatedAt: serverTime,
		}},
		LastMessageAt: serverTime,
	}})

	msgs := m.Messages("c1")
	if len(msgs) != 1 {
		t.Fatalf("expected one logical message across three channels, got %d", len(msgs))
	}
	if m.UnreadCount("c1") != 0 {
		t.Errorf("own message must not count as unread, got %d", m.UnreadCount("c1"))
	}
}

func TestOrderingTiebreaks(t *testing.T) {
	m := newTestManager(newStubSender())
	at := time.Unix(1700000000, 0)

	// Arrival order deliberately scrambled
	m.ApplyRemote(model.Message{ID: "m3", ConversationID: "c1", SenderID: "peer", CreatedAt: at.Add(time.Second), Status: model.StatusSent})
	m.ApplyRemote(model.Message{ID: "m2", ConversationID: "c1", SenderID: "peer", CreatedAt: at, ClientSeq: 2, Status: model.StatusSent})
	m.ApplyRemote(model.Message{ID: "m1", ConversationID: "c1", SenderID: "peer", CreatedAt: at, ClientSeq: 1, Status: model.StatusSent})

	msgs := m.Messages("c1")
	want := []string{"m1", "m2", "m3"}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, msgs[i].ID)
		}
	}
}

func TestStatusOnlyAdvances(t *testing.T) {
	m := newTestManager(newStubSender())
	at := time.Unix(1700000000, 0)

	m.ApplyRemote(model.Message{ID: "m1", ConversationID: "c1", SenderID: "self", CreatedAt: at, Status: model.StatusSent})

	m.AdvanceStatus("c1", "m1", model.StatusRead)
	m.AdvanceStatus("c1", "m1", model.StatusDelivered) // late ack, must not regress

	msgs := m.Messages("c1")
	if msgs[0].Status != model.StatusRead {
		t.Errorf("expected read, got %s", msgs[0].Status)
	}

	// A re-observed stale copy must not regress either
	m.ApplyRemote(model.Message{ID: "m1", ConversationID: "c1", SenderID: "self", CreatedAt: at, Status: model.StatusSent})
	msgs = m.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != model.StatusRead {
		t.Errorf("expected single message still read, got %+v", msgs)
	}
}

func TestUnreadCounting(t *testing.T) {
	m := newTestManager(newStubSender())
	at := time.Unix(1700000000, 0)

	m.ApplyRemote(model.Message{ID: "m1", ConversationID: "c1", SenderID: "peer", CreatedAt: at, Status: model.StatusSent})
	m.ApplyRemote(model.Message{ID: "m2", ConversationID: "c1", SenderID: "peer", CreatedAt: at.Add(time.Second), Status: model.StatusSent})
	// Duplicate delivery of m2 must not double-count
	m.ApplyRemote(model.Message{ID: "m2", ConversationID: "c1", SenderID: "peer", CreatedAt: at.Add(time.Second), Status: model.StatusSent})

	if got := m.UnreadCount("c1"); got != 2 {
		t.Errorf("expected 2 unread, got %d", got)
	}

	m.MarkRead("c1")
	if got := m.UnreadCount("c1"); got != 0 {
		t.Errorf("expected 0 unread after mark read, got %d", got)
	}
}

func TestReplaceAllKeepsInflightPlaceholder(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "c1", "racing")
		done <- err
	}()
	call := sender.awaitCall(t)

	// A reconciliation cycle lands while the send is in flight
	m.ReplaceAll([]model.Conversation{{ID: "c1", ParticipantIDs: []string{"self", "peer"}}})

	msgs := m.Messages("c1")
	if len(msgs) != 1 || msgs[0].Status != model.StatusSending {
		t.Fatalf("expected the in-flight placeholder to survive the cycle, got %+v", msgs)
	}

	srv := confirmed("m9", time.Now())
	srv.Body = "racing"
	call.release <- sendResult{msg: srv}
	if err := <-done; err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs = m.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m9" {
		t.Fatalf("expected the confirmation to replace the placeholder, got %+v", msgs)
	}
}

func TestReplaceAllRestoresPlaceholderForOmittedConversation(t *testing.T) {
	sender := newStubSender()
	m := newTestManager(sender)

	done := make(chan error, 1)
	go func() {
		_, err := m.Send(context.Background(), "c-new", "first message")
		done <- err
	}()
	call := sender.awaitCall(t)

	// The cycle's fetch does not know about c-new yet
	m.ReplaceAll([]model.Conversation{{ID: "c1", ParticipantIDs: []string{"self", "peer"}}})

	msgs := m.Messages("c-new")
	if len(msgs) != 1 || msgs[0].Status != model.StatusSending {
		t.Fatalf("expected the placeholder restored in the omitted conversation, got %+v", msgs)
	}

	// The failure path must still find its placeholder to mark failed
	call.release <- sendResult{err: errors.New("boom")}
	if err := <-done; err == nil {
		t.Fatal("expected an error")
	}

	msgs = m.Messages("c-new")
	if len(msgs) != 1 || msgs[0].Status != model.StatusFailed {
		t.Fatalf("expected a failed entry in the transcript, got %+v", msgs)
	}
}

func TestConversationsOrderedByRecency(t *testing.T) {
	m := newTestManager(newStubSender())
	at := time.Unix(1700000000, 0)

	m.ReplaceAll([]model.Conversation{
		{ID: "c1", LastMessageAt: at},
		{ID: "c2", LastMessageAt: at.Add(time.Hour)},
	})

	convs := m.Conversations()
	if len(convs) != 2 || convs[0].ID != "c2" {
		t.Errorf("expected most recent conversation first, got %+v", convs)
	}
}

func TestTypingIndicator(t *testing.T) {
	tr := NewTypingTracker(30 * time.Millisecond)

	tr.SetTyping("c1")
	if !tr.IsTyping("c1") {
		t.Fatal("expected typing indicator set")
	}

	// Explicit stop wins over the timeout
	tr.StopTyping("c1")
	if tr.IsTyping("c1") {
		t.Fatal("expected typing indicator cleared by stop event")
	}

	tr.SetTyping("c2")
	time.Sleep(60 * time.Millisecond)
	if tr.IsTyping("c2") {
		t.Error("expected typing indicator cleared by timeout")
	}
}
