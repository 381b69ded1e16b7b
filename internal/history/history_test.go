package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/voxhaus/voxhaus/internal/history"
)

func TestMemStore_AppendAndRecent(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	turns := []history.Entry{
		{SessionID: "s1", Role: "user", Content: "turn on the kitchen light", CreatedAt: base},
		{SessionID: "s1", Role: "assistant", Content: "Done.", CreatedAt: base.Add(time.Second)},
		{SessionID: "s2", Role: "user", Content: "close the blinds", CreatedAt: base},
	}
	for _, e := range turns {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries for s1, got %d", len(got))
	}
	if got[0].Content != "turn on the kitchen light" || got[1].Content != "Done." {
		t.Errorf("entries out of chronological order: %+v", got)
	}
}

func TestMemStore_RecentLimit(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e := history.Entry{
			SessionID: "s1",
			Role:      "user",
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	// Limit keeps the newest turns, still oldest-first.
	if got[0].Content != "turn 3" || got[1].Content != "turn 4" {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestMemStore_StampsZeroCreatedAt(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore()
	ctx := context.Background()

	if err := s.Append(ctx, history.Entry{SessionID: "s1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := s.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be stamped")
	}
}

func TestMemStore_Clear(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore()
	ctx := context.Background()

	if err := s.Append(ctx, history.Entry{SessionID: "s1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := s.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries after Clear, got %d", len(got))
	}
}

func TestMemStore_BoundsSessionGrowth(t *testing.T) {
	t.Parallel()

	s := history.NewMemStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 250; i++ {
		e := history.Entry{
			SessionID: "s1",
			Role:      "user",
			Content:   fmt.Sprintf("turn %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := s.Recent(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 200 {
		t.Fatalf("expected 200 retained entries, got %d", len(got))
	}
	if got[0].Content != "turn 50" {
		t.Errorf("expected oldest retained entry to be turn 50, got %q", got[0].Content)
	}
}
