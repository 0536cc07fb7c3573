package feed

import (
	"testing"

	"github.com/plumeapp/plume/internal/model"
)

func posts(ids ...string) []model.Post {
	out := make([]model.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Post{ID: id, AuthorID: "author-" + id})
	}
	return out
}

func ids(posts []model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func assertIDs(t *testing.T, got []model.Post, want ...string) {
	t.Helper()
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("expected ids %v, got %v", want, gotIDs)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("expected ids %v, got %v", want, gotIDs)
		}
	}
}

func assertDisjoint(t *testing.T, q *Queue) {
	t.Helper()
	seen := make(map[string]bool)
	for _, p := range q.Displayed() {
		seen[p.ID] = true
	}
	for _, p := range q.Pending() {
		if seen[p.ID] {
			t.Fatalf("post %s present in both displayed and pending", p.ID)
		}
	}
}

func TestFirstPopulationFillsDisplayed(t *testing.T) {
	q := NewQueue()

	q.Absorb(posts("p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"))

	if len(q.Displayed()) != 10 {
		t.Errorf("expected 10 displayed posts, got %d", len(q.Displayed()))
	}
	if q.PendingCount() != 0 {
		t.Errorf("expected empty pending, got %d", q.PendingCount())
	}
}

func TestSecondAbsorbStagesNewPosts(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"))

	q.Absorb(posts("p11", "p12", "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"))

	assertIDs(t, q.Pending(), "p11", "p12")
	assertIDs(t, q.Displayed(), "p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10")
	assertDisjoint(t, q)
}

func TestPromotePending(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1", "p2"))
	q.Absorb(posts("p3", "p4", "p1", "p2"))

	q.PromotePending()

	assertIDs(t, q.Displayed(), "p3", "p4", "p1", "p2")
	if q.PendingCount() != 0 {
		t.Errorf("expected pending emptied, got %d", q.PendingCount())
	}
}

func TestAbsorbDropsDeletedDisplayedPosts(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1", "p2", "p3"))

	// p2 deleted server-side
	q.Absorb(posts("p1", "p3"))

	assertIDs(t, q.Displayed(), "p1", "p3")
	assertDisjoint(t, q)
}

func TestAbsorbRemapsDisplayedToLatestVersion(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1"))

	updated := []model.Post{{ID: "p1", AuthorID: "author-p1", Content: "edited"}}
	q.Absorb(updated)

	got := q.Displayed()
	if got[0].Content != "edited" {
		t.Errorf("expected displayed post remapped to latest version, got %q", got[0].Content)
	}
}

func TestAbsorbDiscardsPendingDuplicates(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1"))
	q.Absorb(posts("p2", "p1"))
	q.Absorb(posts("p3", "p2", "p1"))

	// p2 must appear once, p3 placed ahead of it
	assertIDs(t, q.Pending(), "p3", "p2")
	assertDisjoint(t, q)
}

func TestPendingOnlyGrowsViaAbsorb(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1"))
	q.Absorb(posts("p2", "p1"))

	before := q.PendingCount()
	q.Absorb(posts("p2", "p1"))
	if q.PendingCount() != before {
		t.Errorf("pending changed without new posts: %d -> %d", before, q.PendingCount())
	}

	q.PromotePending()
	if q.PendingCount() != 0 {
		t.Error("expected PromotePending to empty pending")
	}
}

func TestAbsorbOne(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1", "p2"))

	q.AbsorbOne(model.Post{ID: "p3"})
	assertIDs(t, q.Pending(), "p3")

	// Same push event delivered twice
	q.AbsorbOne(model.Post{ID: "p3"})
	assertIDs(t, q.Pending(), "p3")

	// Updated copy of a displayed post stays displayed
	q.AbsorbOne(model.Post{ID: "p1", Content: "edited"})
	got := q.Displayed()
	if got[0].Content != "edited" {
		t.Errorf("expected in-place update of displayed post, got %q", got[0].Content)
	}
	assertDisjoint(t, q)
}

func TestInsertDisplayed(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1"))

	q.InsertDisplayed(model.Post{ID: "mine"})
	assertIDs(t, q.Displayed(), "mine", "p1")

	// The next cycle includes the new post; it must stay displayed,
	// not resurface as pending
	q.Absorb(posts("mine", "p1"))
	assertIDs(t, q.Displayed(), "mine", "p1")
	if q.PendingCount() != 0 {
		t.Errorf("expected no pending, got %d", q.PendingCount())
	}
}

func TestReset(t *testing.T) {
	q := NewQueue()
	q.Absorb(posts("p1"))
	q.Absorb(posts("p2", "p1"))

	q.Reset()

	if len(q.Displayed()) != 0 || q.PendingCount() != 0 {
		t.Error("expected empty queue after reset")
	}

	// First population semantics apply again
	q.Absorb(posts("p9"))
	assertIDs(t, q.Displayed(), "p9")
}
