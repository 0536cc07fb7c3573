// Package feed maintains the split between posts the user is currently
// looking at and posts that arrived since, so background updates never
// reshuffle an actively read feed.
package feed

import (
	"sync"

	"github.com/plumeapp/plume/internal/model"
)

// Queue holds the displayed and pending post sequences.
// Invariant: the two sequences are disjoint by post id.
type Queue struct {
	mu        sync.RWMutex
	displayed []model.Post
	pending   []model.Post
	populated bool
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{}
}

// Absorb merges the authoritative post collection from a reconciliation
// cycle. The first population fills the displayed sequence directly; every
// later call re-maps displayed posts to their latest versions (dropping
// deleted ones) and stages unseen posts as pending, newest first.
func (q *Queue) Absorb(latest []model.Post) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.populated {
		q.displayed = append([]model.Post(nil), latest...)
		q.populated = true
		return
	}

	byID := make(map[string]model.Post, len(latest))
	for _, p := range latest {
		byID[p.ID] = p
	}

	displayed := make([]model.Post, 0, len(q.displayed))
	displayedIDs := make(map[string]struct{}, len(q.displayed))
	for _, p := range q.displayed {
		current, ok := byID[p.ID]
		if !ok {
			// Deleted server-side
			continue
		}
		displayed = append(displayed, current)
		displayedIDs[p.ID] = struct{}{}
	}

	pendingIDs := make(map[string]struct{}, len(q.pending))
	for _, p := range q.pending {
		pendingIDs[p.ID] = struct{}{}
	}

	var fresh []model.Post
	for _, p := range latest {
		if _, ok := displayedIDs[p.ID]; ok {
			continue
		}
		if _, ok := pendingIDs[p.ID]; ok {
			continue
		}
		fresh = append(fresh, p)
	}

	// Refresh the copies already pending, then place newly discovered
	// posts ahead of them
	pending := make([]model.Post, 0, len(fresh)+len(q.pending))
	pending = append(pending, fresh...)
	for _, p := range q.pending {
		if current, ok := byID[p.ID]; ok {
			pending = append(pending, current)
		}
	}

	q.displayed = displayed
	q.pending = pending
}

// AbsorbOne stages a single push-delivered post without waiting for the
// next reconciliation cycle. Known posts are updated in place.
func (q *Queue) AbsorbOne(post model.Post) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.populated {
		q.displayed = []model.Post{post}
		q.populated = true
		return
	}

	for i, p := range q.displayed {
		if p.ID == post.ID {
			displayed := append([]model.Post(nil), q.displayed...)
			displayed[i] = post
			q.displayed = displayed
			return
		}
	}
	for i, p := range q.pending {
		if p.ID == post.ID {
			pending := append([]model.Post(nil), q.pending...)
			pending[i] = post
			q.pending = pending
			return
		}
	}

	q.pending = append([]model.Post{post}, q.pending...)
}

// InsertDisplayed point-inserts a freshly created own post at the front of
// the displayed sequence. The next Absorb sees it in the authoritative
// collection and keeps it.
func (q *Queue) InsertDisplayed(post model.Post) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range q.displayed {
		if p.ID == post.ID {
			return
		}
	}

	pending := q.pending[:0:0]
	for _, p := range q.pending {
		if p.ID != post.ID {
			pending = append(pending, p)
		}
	}
	q.pending = pending
	q.displayed = append([]model.Post{post}, q.displayed...)
	q.populated = true
}

// Remove drops a post from either sequence (local deletion)
func (q *Queue) Remove(postID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	displayed := q.displayed[:0:0]
	for _, p := range q.displayed {
		if p.ID != postID {
			displayed = append(displayed, p)
		}
	}
	pending := q.pending[:0:0]
	for _, p := range q.pending {
		if p.ID != postID {
			pending = append(pending, p)
		}
	}
	q.displayed = displayed
	q.pending = pending
}

// PromotePending moves every pending post to the front of the displayed
// sequence, preserving pending order. Only explicit user action calls this.
func (q *Queue) PromotePending() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return
	}

	displayed := make([]model.Post, 0, len(q.pending)+len(q.displayed))
	displayed = append(displayed, q.pending...)
	displayed = append(displayed, q.displayed...)

	q.displayed = displayed
	q.pending = nil
}

// Displayed returns a copy of the currently displayed posts
func (q *Queue) Displayed() []model.Post {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]model.Post(nil), q.displayed...)
}

// Pending returns a copy of the posts staged for promotion
func (q *Queue) Pending() []model.Post {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]model.Post(nil), q.pending...)
}

// PendingCount returns the number of staged posts
func (q *Queue) PendingCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.pending)
}

// Reset clears all state (logout boundary)
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.displayed = nil
	q.pending = nil
	q.populated = false
}
