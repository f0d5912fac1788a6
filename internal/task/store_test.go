package task

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"github.com/wudi/readease/internal/sql"
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	sdb, err := sql.NewDB(sql.Sqlite3, filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	s, err := NewSQLStore(context.Background(), zerolog.Nop(), sdb)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMemStore(t *testing.T) Store {
	t.Helper()
	s, err := NewMemStore()
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	return s
}

func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	running := &Task{
		ID:        "a",
		Type:      TypeTranscription,
		Status:    StatusProcessing,
		FilePath:  "uploaded_transcription/a.mp3",
		ModelSize: "base",
		Options:   Options{Language: "it", FocusAreas: []string{"x"}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	done := &Task{
		ID:        "b",
		Type:      TypeOCR,
		Status:    StatusProcessing,
		FilePath:  "uploaded_ocr/b.png",
		ModelSize: "base",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, tk := range []*Task{running, done} {
		if err := s.Create(ctx, tk); err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	timeCmp := cmpopts.EquateApproxTime(time.Millisecond)
	if diff := cmp.Diff(running, got, timeCmp); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}

	done.Status = StatusCompleted
	done.Result = Result{"text": "hello", "pages": float64(1)}
	done.UpdatedAt = now.Add(time.Minute)
	if err := s.Update(ctx, done); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	got, err = s.Get(ctx, "b")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if diff := cmp.Diff(done, got, timeCmp); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
	if err := s.Update(ctx, &Task{ID: "missing"}); !errors.Is(err, ErrNotExist) {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}

	n, err := s.FailInterrupted(ctx, InterruptedError)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 interrupted task, got %d", n)
	}
	got, _ = s.Get(ctx, "a")
	if got.Status != StatusFailed || got.Error != InterruptedError {
		t.Fatalf("unexpected interrupted task: %+v", got)
	}
	got, _ = s.Get(ctx, "b")
	if got.Status != StatusCompleted {
		t.Fatalf("completed task must not change, got %s", got.Status)
	}
}

func TestMemStore(t *testing.T) {
	testStore(t, newMemStore(t))
}

func TestSQLiteStore(t *testing.T) {
	testStore(t, newSQLiteStore(t))
}

func TestMemStoreIsolation(t *testing.T) {
	s := newMemStore(t)
	ctx := context.Background()
	tk := &Task{ID: "a", Status: StatusProcessing, Result: Result{"k": "v"}}
	if err := s.Create(ctx, tk); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	tk.Result["k"] = "changed"
	got, _ := s.Get(ctx, "a")
	if got.Result["k"] != "v" {
		t.Fatalf("store must keep its own copy, got %v", got.Result["k"])
	}
	if err := s.Create(ctx, tk); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}
