package reconcile

import (
	"context"

	"github.com/plumeapp/plume/internal/model"
)

// User actions: thin write-through to the gateway. Own posts are
// point-inserted locally; everything else refreshes on the next cycle.

// CreatePost publishes a post and point-inserts the server's copy at the
// front of the displayed feed
func (e *Engine) CreatePost(ctx context.Context, content string) (*model.Post, error) {
	post, err := e.gw.CreatePost(ctx, content)
	if err != nil {
		return nil, err
	}
	e.feed.InsertDisplayed(*post)
	return post, nil
}

// EditPost replaces a post's content remotely; the local copy refreshes
// on the next cycle
func (e *Engine) EditPost(ctx context.Context, postID, content string) (*model.Post, error) {
	return e.gw.EditPost(ctx, postID, content)
}

// DeletePost removes a post remotely and drops the local copy
func (e *Engine) DeletePost(ctx context.Context, postID string) error {
	if err := e.gw.DeletePost(ctx, postID); err != nil {
		return err
	}
	e.feed.Remove(postID)
	return nil
}

// React records a reaction. Reaction counts are server-derived; the
// local copy refreshes on the next cycle.
func (e *Engine) React(ctx context.Context, postID, kind string) error {
	return e.gw.React(ctx, postID, kind)
}

// Reply publishes a reply under a post
func (e *Engine) Reply(ctx context.Context, postID, content string) (*model.Post, error) {
	return e.gw.Reply(ctx, postID, content)
}

// Vote records a poll vote
func (e *Engine) Vote(ctx context.Context, postID string, option int) error {
	return e.gw.Vote(ctx, postID, option)
}

// Follow subscribes to a user
func (e *Engine) Follow(ctx context.Context, userID string) error {
	return e.gw.Follow(ctx, userID)
}

// Unfollow unsubscribes from a user
func (e *Engine) Unfollow(ctx context.Context, userID string) error {
	return e.gw.Unfollow(ctx, userID)
}

// SendMessage runs the chat send lifecycle (placeholder, confirmation,
// failure with preserved draft)
func (e *Engine) SendMessage(ctx context.Context, conversationID, body string) (*model.Message, error) {
	return e.chat.Send(ctx, conversationID, body)
}

// MarkConversationRead clears the unread counter locally and remotely.
// The local reset stands even when the remote call fails; the next cycle
// re-derives the true counter.
func (e *Engine) MarkConversationRead(ctx context.Context, conversationID string) error {
	e.chat.MarkRead(conversationID)
	return e.gw.MarkConversationRead(ctx, conversationID)
}

// PromotePending moves all pending posts into the displayed feed; only
// the explicit show-new-posts action calls this
func (e *Engine) PromotePending() {
	e.feed.PromotePending()
	if e.metrics != nil {
		e.metrics.PendingPosts.Set(0)
	}
}

// Read accessors for UI collaborators

// User returns a copy of the current-user record, nil when logged out
func (e *Engine) User() *model.User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneUser(e.user)
}

// Notifications returns the merged, de-duplicated notification list
func (e *Engine) Notifications() []model.Notification {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Notification(nil), e.notifications...)
}

// Stories returns the current ephemeral stories
func (e *Engine) Stories() []model.Story {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Story(nil), e.stories...)
}

// Directory returns the known-users directory
func (e *Engine) Directory() map[string]model.User {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]model.User, len(e.directory))
	for k, v := range e.directory {
		out[k] = v
	}
	return out
}

// DisplayedPosts returns the posts the user is currently looking at
func (e *Engine) DisplayedPosts() []model.Post {
	return e.feed.Displayed()
}

// PendingPosts returns the posts staged behind show-new-posts
func (e *Engine) PendingPosts() []model.Post {
	return e.feed.Pending()
}

// PendingCount returns the number of staged posts
func (e *Engine) PendingCount() int {
	return e.feed.PendingCount()
}

// Conversations returns conversations ordered by most recent message
func (e *Engine) Conversations() []model.Conversation {
	return e.chat.Conversations()
}

// Messages returns the merged transcript for one conversation
func (e *Engine) Messages(conversationID string) []model.Message {
	return e.chat.Messages(conversationID)
}

// IsTyping reports the typing indicator for one conversation
func (e *Engine) IsTyping(conversationID string) bool {
	return e.chat.Typing().IsTyping(conversationID)
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	clone := *u
	clone.FollowingIDs = append([]string(nil), u.FollowingIDs...)
	clone.Notifications = append([]model.Notification(nil), u.Notifications...)
	return &clone
}
