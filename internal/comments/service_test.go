package comments

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:comments_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Comment{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T, clock func() time.Time) *Service {
	t.Helper()
	if clock == nil {
		clock = time.Now
	}
	service, err := NewService(ServiceConfig{
		Database:   openTestDatabase(t),
		Clock:      clock,
		IDProvider: NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("unexpected constructor error: %v", err)
	}
	return service
}

func TestSendAppendsComment(t *testing.T) {
	service := newTestService(t, nil)

	attachments := []Attachment{{Name: "sketch.png", URL: "https://files.example.com/sketch.png"}}
	comment, err := service.Send(context.Background(), "task-1", "user-1", "looks good", attachments)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if comment.ID == "" {
		t.Fatalf("expected generated comment id")
	}
	if got := comment.Attachments(); len(got) != 1 || got[0].Name != "sketch.png" {
		t.Fatalf("unexpected attachments %#v", got)
	}

	history, err := service.History(context.Background(), "task-1", "user-2")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 1 || history[0].Content != "looks good" {
		t.Fatalf("unexpected history %#v", history)
	}
}

func TestSendRejectsEmptyComment(t *testing.T) {
	service := newTestService(t, nil)

	if _, err := service.Send(context.Background(), "task-1", "user-1", "  ", nil); err == nil {
		t.Fatalf("expected error for empty content without attachments")
	}
}

func TestTogglePinRoundTrip(t *testing.T) {
	pinnedAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	service := newTestService(t, func() time.Time { return pinnedAt })
	ctx := context.Background()

	comment, err := service.Send(ctx, "task-1", "user-1", "pin me", nil)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	pinned, err := service.TogglePin(ctx, comment.ID, "user-2")
	if err != nil {
		t.Fatalf("unexpected pin error: %v", err)
	}
	if !pinned.Pinned || pinned.PinnedBy != "user-2" || pinned.PinnedAt == nil {
		t.Fatalf("expected pinned state with attribution, got %#v", pinned)
	}

	unpinned, err := service.TogglePin(ctx, comment.ID, "user-3")
	if err != nil {
		t.Fatalf("unexpected unpin error: %v", err)
	}
	if unpinned.Pinned || unpinned.PinnedBy != "" || unpinned.PinnedAt != nil {
		t.Fatalf("expected pin state cleared on second toggle, got %#v", unpinned)
	}

	history, err := service.History(ctx, "task-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if history[0].Pinned || history[0].PinnedBy != "" || history[0].PinnedAt != nil {
		t.Fatalf("expected cleared pin state persisted, got %#v", history[0])
	}
}

func TestTogglePinUnknownComment(t *testing.T) {
	service := newTestService(t, nil)

	_, err := service.TogglePin(context.Background(), "missing", "user-1")
	if !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}

func TestHideExcludesViewerFromHistory(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	first, err := service.Send(ctx, "task-1", "user-1", "visible to all", nil)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	second, err := service.Send(ctx, "task-1", "user-1", "hidden for bob", nil)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	if _, err := service.Hide(ctx, second.ID, "bob"); err != nil {
		t.Fatalf("unexpected hide error: %v", err)
	}

	bobHistory, err := service.History(ctx, "task-1", "bob")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(bobHistory) != 1 || bobHistory[0].ID != first.ID {
		t.Fatalf("expected hidden comment excluded for bob, got %#v", bobHistory)
	}

	aliceHistory, err := service.History(ctx, "task-1", "alice")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(aliceHistory) != 2 {
		t.Fatalf("expected full history for other viewers, got %d comments", len(aliceHistory))
	}
}

func TestHideIsIdempotent(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	comment, err := service.Send(ctx, "task-1", "user-1", "hide twice", nil)
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if _, err := service.Hide(ctx, comment.ID, "bob"); err != nil {
		t.Fatalf("unexpected first hide error: %v", err)
	}
	hidden, err := service.Hide(ctx, comment.ID, "bob")
	if err != nil {
		t.Fatalf("unexpected second hide error: %v", err)
	}
	if got := hidden.HiddenFor(); len(got) != 1 {
		t.Fatalf("expected single exclusion entry, got %#v", got)
	}
}

func TestClearRemovesThread(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	if _, err := service.Send(ctx, "task-1", "user-1", "one", nil); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if _, err := service.Send(ctx, "task-1", "user-1", "two", nil); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if _, err := service.Send(ctx, "task-2", "user-1", "other thread", nil); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}

	if err := service.Clear(ctx, "task-1"); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}

	cleared, err := service.History(ctx, "task-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(cleared) != 0 {
		t.Fatalf("expected empty thread after clear, got %d comments", len(cleared))
	}

	other, err := service.History(ctx, "task-2", "user-1")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(other) != 1 {
		t.Fatalf("expected untouched sibling thread, got %d comments", len(other))
	}
}

func TestHistoryOrderedByCreation(t *testing.T) {
	current := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	service := newTestService(t, func() time.Time {
		current = current.Add(time.Second)
		return current
	})
	ctx := context.Background()

	for _, content := range []string{"first", "second", "third"} {
		if _, err := service.Send(ctx, "task-1", "user-1", content, nil); err != nil {
			t.Fatalf("unexpected send error: %v", err)
		}
	}

	history, err := service.History(ctx, "task-1", "user-1")
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	expected := []string{"first", "second", "third"}
	for index, content := range expected {
		if history[index].Content != content {
			t.Fatalf("expected %s at index %d, got %s", content, index, history[index].Content)
		}
	}
}
