// Package reconcile orchestrates full refresh cycles against the remote
// data gateway and merges push-delivered deltas into the same local view.
package reconcile

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/plumeapp/plume/internal/chat"
	"github.com/plumeapp/plume/internal/config"
	"github.com/plumeapp/plume/internal/feed"
	"github.com/plumeapp/plume/internal/model"
	"github.com/plumeapp/plume/internal/notify"
	"github.com/plumeapp/plume/internal/ops"
	"github.com/plumeapp/plume/internal/push"
)

// Gateway is the remote data gateway surface the engine consumes.
// Satisfied by *gateway.Client.
type Gateway interface {
	chat.Sender

	HasSession() bool
	FetchCurrentUser(ctx context.Context) (*model.User, error)
	FetchNotifications(ctx context.Context) ([]model.Notification, error)
	FetchStories(ctx context.Context) ([]model.Story, error)
	FetchPosts(ctx context.Context) ([]model.Post, error)
	FetchConversations(ctx context.Context) ([]model.Conversation, error)

	CreatePost(ctx context.Context, content string) (*model.Post, error)
	EditPost(ctx context.Context, postID, content string) (*model.Post, error)
	DeletePost(ctx context.Context, postID string) error
	React(ctx context.Context, postID, kind string) error
	Reply(ctx context.Context, postID, content string) (*model.Post, error)
	Vote(ctx context.Context, postID string, option int) error
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
}

// SessionStore persists session state across restarts. Satisfied by
// *session.Store; load and save are whole-object operations.
type SessionStore interface {
	LoadCurrentUser(ctx context.Context) (*model.User, error)
	SaveCurrentUser(ctx context.Context, user *model.User) error
	LoadUserDirectory(ctx context.Context) (map[string]model.User, error)
	SaveUserDirectory(ctx context.Context, users map[string]model.User) error
	Clear(ctx context.Context) error
}

const typingTimeout = 5 * time.Second

// Engine owns the local view: current user, stories, the feed merge
// queue, the notification tracker, and the chat manager. All mutations
// flow through it, either from reconciliation cycles or from the push
// event loop.
type Engine struct {
	cfg     *config.Config
	gw      Gateway
	store   SessionStore
	alerter notify.Alerter
	logger  *ops.Logger
	metrics *ops.Metrics

	feed    *feed.Queue
	tracker *notify.Tracker
	chat    *chat.Manager

	mu            sync.RWMutex
	user          *model.User
	directory     map[string]model.User
	stories       []model.Story
	notifications []model.Notification

	cycles atomic.Uint64
	wg     sync.WaitGroup
}

// New wires an engine from its collaborators
func New(cfg *config.Config, gw Gateway, store SessionStore, alerter notify.Alerter, logger *ops.Logger, metrics *ops.Metrics) *Engine {
	if alerter == nil || !cfg.Notifications.AlertsEnabled {
		alerter = notify.NoopAlerter{}
	}
	return &Engine{
		cfg:       cfg,
		gw:        gw,
		store:     store,
		alerter:   alerter,
		logger:    logger.WithComponent("reconcile"),
		metrics:   metrics,
		feed:      feed.NewQueue(),
		tracker:   notify.NewTracker(cfg.Notifications.KnownCacheSize),
		chat:      chat.NewManager(gw, typingTimeout),
		directory: make(map[string]model.User),
	}
}

// StartSession primes the local view from the persisted store and re-arms
// first-cycle alert suppression. Called at the login boundary.
func (e *Engine) StartSession(ctx context.Context) error {
	user, err := e.store.LoadCurrentUser(ctx)
	if err != nil {
		return err
	}
	directory, err := e.store.LoadUserDirectory(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.user = user
	e.directory = directory
	if user != nil {
		e.notifications = user.Notifications
	}
	e.mu.Unlock()

	if user != nil {
		e.chat.SetSelf(user.ID)
	}
	e.tracker.BeginSession()
	return nil
}

// EndSession tears session state down: the persisted store is cleared and
// the in-memory view reset. The notification tracker's known-id set
// survives; it is process-lifetime state.
func (e *Engine) EndSession(ctx context.Context) error {
	e.mu.Lock()
	e.user = nil
	e.directory = make(map[string]model.User)
	e.stories = nil
	e.notifications = nil
	e.mu.Unlock()

	e.feed.Reset()
	e.chat.Reset()
	return e.store.Clear(ctx)
}

// Reconcile runs one full fetch-and-merge cycle. Without a session token
// it is a silent no-op: an absent session is an expected idle state, not
// an error. The five domain fetches run concurrently and are applied
// independently as they complete; a failing domain keeps its prior state.
func (e *Engine) Reconcile(ctx context.Context) error {
	if !e.gw.HasSession() {
		return nil
	}

	start := time.Now()
	cycle := e.cycles.Add(1)

	var (
		failMu sync.Mutex
		failed = make(map[string]error)
		wg     sync.WaitGroup
	)
	fail := func(domain string, err error) {
		failMu.Lock()
		failed[domain] = err
		failMu.Unlock()
		if e.metrics != nil {
			e.metrics.ReconcileFailures.WithLabelValues(domain).Inc()
		}
	}

	run := func(domain string, fetch func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fetch(ctx); err != nil {
				fail(domain, err)
			}
		}()
	}

	run("user", e.fetchUser)
	run("notifications", e.fetchNotifications)
	run("stories", e.fetchStories)
	run("posts", e.fetchPosts)
	run("conversations", e.fetchConversations)
	wg.Wait()

	e.persistSession(ctx)

	if e.metrics != nil {
		e.metrics.ReconcileCycles.Inc()
		e.metrics.PendingPosts.Set(float64(e.feed.PendingCount()))
	}

	var failedNames []string
	if len(failed) > 0 {
		cerr := &CycleError{Domains: failed}
		failedNames = cerr.FailedDomains()
		e.logger.LogReconcileCycle(cycle, time.Since(start), failedNames)
		return cerr
	}

	e.logger.LogReconcileCycle(cycle, time.Since(start), nil)
	return nil
}

func (e *Engine) fetchUser(ctx context.Context) error {
	fetched, err := e.gw.FetchCurrentUser(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if len(fetched.Notifications) == 0 {
		// The profile endpoint does not carry notifications; keep the
		// merged list from the notifications domain
		fetched.Notifications = e.notifications
	}
	e.user = fetched
	e.directory[fetched.ID] = *fetched
	e.mu.Unlock()

	e.chat.SetSelf(fetched.ID)
	return nil
}

func (e *Engine) fetchNotifications(ctx context.Context) error {
	notifs, err := e.gw.FetchNotifications(ctx)
	if err != nil {
		return err
	}

	for _, n := range notifs {
		if e.tracker.Observe(n) {
			e.deliverAlert(n)
		}
	}

	e.mu.Lock()
	e.notifications = notifs
	if e.user != nil {
		e.user.Notifications = notifs
	}
	e.mu.Unlock()

	// Suppression lifts only once a notification list has actually been
	// recorded; a failed first fetch must not arm alerts for ids that
	// were already on the server at session start
	e.tracker.CompleteFirstCycle()
	return nil
}

func (e *Engine) fetchStories(ctx context.Context) error {
	stories, err := e.gw.FetchStories(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.stories = stories
	e.mu.Unlock()
	return nil
}

func (e *Engine) fetchPosts(ctx context.Context) error {
	posts, err := e.gw.FetchPosts(ctx)
	if err != nil {
		return err
	}

	// The backend has been seen returning the same post twice in one page
	seen := make(map[string]struct{}, len(posts))
	deduped := posts[:0:0]
	for _, p := range posts {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		deduped = append(deduped, p)
	}

	e.feed.Absorb(deduped)
	return nil
}

func (e *Engine) fetchConversations(ctx context.Context) error {
	convs, err := e.gw.FetchConversations(ctx)
	if err != nil {
		return err
	}

	for i := range convs {
		convs[i].ParticipantIDs = normalizeParticipants(convs[i].ParticipantIDs)
	}

	e.chat.ReplaceAll(convs)
	return nil
}

// normalizeParticipants drops empty and duplicate participant references,
// keeping order
func normalizeParticipants(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (e *Engine) deliverAlert(n model.Notification) {
	err := e.alerter.Alert(n)
	e.logger.LogAlert(n.ID, n.Type, err)
	if err == nil && e.metrics != nil {
		e.metrics.AlertsFired.Inc()
	}
}

// persistSession saves the current user and directory; failures are
// logged, never fatal to the cycle
func (e *Engine) persistSession(ctx context.Context) {
	e.mu.RLock()
	user := cloneUser(e.user)
	directory := make(map[string]model.User, len(e.directory))
	for k, v := range e.directory {
		directory[k] = v
	}
	e.mu.RUnlock()

	if user != nil {
		if err := e.store.SaveCurrentUser(ctx, user); err != nil {
			e.logger.Warn("failed to persist current user", "error", err)
		}
	}
	if err := e.store.SaveUserDirectory(ctx, directory); err != nil {
		e.logger.Warn("failed to persist user directory", "error", err)
	}
}

// ConsumePush drains the push event channel until it closes. Run this in
// its own goroutine; it is the single writer applying push deltas, so
// handlers always observe current state rather than a stale snapshot.
func (e *Engine) ConsumePush(events <-chan push.Event) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for ev := range events {
			e.applyPush(ev)
		}
	}()
}

// Wait blocks until the push consumer has drained
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) applyPush(ev push.Event) {
	if e.metrics != nil {
		e.metrics.PushEvents.WithLabelValues(string(ev.Type)).Inc()
	}

	switch ev.Type {
	case push.EventNotification:
		if ev.Notification == nil {
			return
		}
		n := *ev.Notification
		if e.tracker.Observe(n) {
			e.deliverAlert(n)
		}
		e.mu.Lock()
		if !containsNotification(e.notifications, n.ID) {
			e.notifications = append([]model.Notification{n}, e.notifications...)
			if e.user != nil {
				e.user.Notifications = e.notifications
			}
		}
		e.mu.Unlock()

	case push.EventMessage:
		if ev.Message != nil {
			e.chat.ApplyRemote(*ev.Message)
		}

	case push.EventMessageStatus:
		if ev.Status != nil {
			e.chat.AdvanceStatus(ev.Status.ConversationID, ev.Status.MessageID, ev.Status.Status)
		}

	case push.EventPost:
		if ev.Post != nil {
			e.feed.AbsorbOne(*ev.Post)
			if e.metrics != nil {
				e.metrics.PendingPosts.Set(float64(e.feed.PendingCount()))
			}
		}

	case push.EventTyping:
		e.chat.Typing().SetTyping(ev.ConversationID)

	case push.EventStopTyping:
		e.chat.Typing().StopTyping(ev.ConversationID)
	}
}

func containsNotification(list []model.Notification, id string) bool {
	for _, n := range list {
		if n.ID == id {
			return true
		}
	}
	return false
}
