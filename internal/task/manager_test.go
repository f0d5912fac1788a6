package task

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"github.com/wudi/readease/internal/objectstorage"
)

type funcProcessor func(ctx context.Context, t *Task, data []byte) (Result, error)

func (f funcProcessor) Process(ctx context.Context, t *Task, data []byte) (Result, error) {
	return f(ctx, t, data)
}

func newManager(t *testing.T, workers, queueSize int) (*Manager, objectstorage.Storage) {
	t.Helper()
	ost, err := objectstorage.NewPosix(t.TempDir())
	assert.NilError(t, err)
	return NewManager(zerolog.Nop(), newMemStore(t), ost, workers, queueSize), ost
}

func waitStatus(t *testing.T, m *Manager, id string) *Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		tk, err := m.Get(context.Background(), id)
		assert.NilError(t, err)
		if tk.Status != StatusProcessing {
			return tk
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s still processing", id)
	return nil
}

func TestManagerProcesses(t *testing.T) {
	m, ost := newManager(t, 2, 8)
	m.Register(TypeOCR, funcProcessor(func(ctx context.Context, tk *Task, data []byte) (Result, error) {
		return Result{"text": string(data)}, nil
	}))
	m.Register(TypeTranscription, funcProcessor(func(ctx context.Context, tk *Task, data []byte) (Result, error) {
		return nil, errors.New("model unavailable")
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	ok, err := m.Submit(ctx, TypeOCR, "scan.PNG", []byte("pixels"), "", Options{})
	assert.NilError(t, err)
	assert.Equal(t, ok.Status, StatusProcessing)
	assert.Equal(t, ok.ModelSize, DefaultModelSize)
	assert.Equal(t, ok.FilePath, "uploaded_ocr/"+ok.ID+".png")
	_, err = ost.Stat(ctx, ok.FilePath)
	assert.NilError(t, err)

	bad, err := m.Submit(ctx, TypeTranscription, "talk.mp3", []byte("x"), "small", Options{})
	assert.NilError(t, err)

	got := waitStatus(t, m, ok.ID)
	assert.Equal(t, got.Status, StatusCompleted)
	assert.Equal(t, got.Result["text"], "pixels")

	got = waitStatus(t, m, bad.ID)
	assert.Equal(t, got.Status, StatusFailed)
	assert.ErrorContains(t, errors.New(got.Error), "model unavailable")

	_, err = m.Submit(ctx, TypeTranslation, "a.mp3", []byte("x"), "", Options{})
	assert.Assert(t, errors.Is(err, ErrUnsupportedType))

	cancel()
	assert.NilError(t, <-done)
}

func TestManagerQueueFull(t *testing.T) {
	m, ost := newManager(t, 1, 1)
	m.Register(TypeOCR, funcProcessor(func(ctx context.Context, tk *Task, data []byte) (Result, error) {
		return Result{}, nil
	}))
	ctx := context.Background()

	// no workers are running so the single slot stays taken
	first, err := m.Submit(ctx, TypeOCR, "a.png", []byte("x"), "", Options{})
	assert.NilError(t, err)
	assert.Equal(t, first.Status, StatusProcessing)

	_, err = m.Submit(ctx, TypeOCR, "b.png", []byte("x"), "", Options{})
	assert.Assert(t, errors.Is(err, ErrQueueFull))

	// only the queued upload is kept
	_, err = ost.Stat(ctx, first.FilePath)
	assert.NilError(t, err)
}

func TestManagerRecoversInterrupted(t *testing.T) {
	m, _ := newManager(t, 1, 1)
	ctx, cancel := context.WithCancel(context.Background())

	stale := &Task{ID: "stale", Type: TypeOCR, Status: StatusProcessing}
	assert.NilError(t, m.store.Create(ctx, stale))

	assert.NilError(t, m.Recover(ctx))
	cancel()
	assert.NilError(t, m.Run(ctx))

	got, err := m.Get(context.Background(), "stale")
	assert.NilError(t, err)
	assert.Equal(t, got.Status, StatusFailed)
	assert.Equal(t, got.Error, InterruptedError)
}

func TestManagerRecoversPanic(t *testing.T) {
	m, _ := newManager(t, 1, 4)
	m.Register(TypeOCR, funcProcessor(func(ctx context.Context, tk *Task, data []byte) (Result, error) {
		panic("boom")
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	tk, err := m.Submit(ctx, TypeOCR, "a.png", []byte("x"), "", Options{})
	assert.NilError(t, err)
	got := waitStatus(t, m, tk.ID)
	assert.Equal(t, got.Status, StatusFailed)
	assert.Equal(t, got.Error, "processor panic: boom")
}
