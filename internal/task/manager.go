package task

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/sync/errgroup"

	"github.com/wudi/readease/internal/objectstorage"
	"github.com/wudi/readease/internal/util"
)

var (
	ErrQueueFull       = errors.New("task queue is full")
	ErrUnsupportedType = errors.New("unsupported process type")
)

const DefaultModelSize = "base"

// Processor turns an uploaded file into a task result. A returned error
// fails the task; a Result carrying an "error" key still completes it.
type Processor interface {
	Process(ctx context.Context, t *Task, data []byte) (Result, error)
}

type Manager struct {
	log        zerolog.Logger
	store      Store
	ost        objectstorage.Storage
	processors map[Type]Processor
	workers    int
	queue      chan string
	now        func() time.Time
}

func NewManager(log zerolog.Logger, store Store, ost objectstorage.Storage, workers, queueSize int) *Manager {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Manager{
		log:        log,
		store:      store,
		ost:        ost,
		processors: map[Type]Processor{},
		workers:    workers,
		queue:      make(chan string, queueSize),
		now:        time.Now,
	}
}

// Register sets the processor of typ.
func (m *Manager) Register(typ Type, p Processor) {
	m.processors[typ] = p
}

// UploadPath is where the upload of a task is stored.
func UploadPath(typ Type, id, filename string) string {
	return "uploaded_" + string(typ) + "/" + id + strings.ToLower(path.Ext(path.Base(filename)))
}

// Submit stores the upload, records a processing task and queues it.
func (m *Manager) Submit(ctx context.Context, typ Type, filename string, data []byte, modelSize string, opts Options) (*Task, error) {
	if _, ok := m.processors[typ]; !ok {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", typ)
	}
	if modelSize == "" {
		modelSize = DefaultModelSize
	}

	id := util.NewID()
	now := m.now()
	t := &Task{
		ID:        id,
		Type:      typ,
		Status:    StatusProcessing,
		FilePath:  UploadPath(typ, id, filename),
		ModelSize: modelSize,
		Options:   opts,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.ost.WriteObject(ctx, t.FilePath, bytes.NewReader(data), int64(len(data)), true); err != nil {
		return nil, errors.Wrapf(err, "failed to store upload")
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, errors.WithStack(err)
	}

	select {
	case m.queue <- t.ID:
	default:
		m.finish(ctx, t, nil, ErrQueueFull)
		if err := m.ost.DeleteObject(ctx, t.FilePath); err != nil {
			m.log.Warn().Err(err).Str("path", t.FilePath).Msg("failed to delete upload")
		}
		return nil, errors.WithStack(ErrQueueFull)
	}

	m.log.Info().Str("task", t.ID).Str("type", string(typ)).Str("path", t.FilePath).Msg("task queued")
	return t, nil
}

func (m *Manager) Get(ctx context.Context, id string) (*Task, error) {
	return m.store.Get(ctx, id)
}

// Recover fails tasks a previous process left running. It must be called
// before any Submit.
func (m *Manager) Recover(ctx context.Context) error {
	n, err := m.store.FailInterrupted(ctx, InterruptedError)
	if err != nil {
		return errors.Wrapf(err, "failed to recover interrupted tasks")
	}
	if n > 0 {
		m.log.Warn().Int("tasks", n).Msg("marked interrupted tasks as failed")
	}
	return nil
}

// Run processes queued tasks until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < m.workers; i++ {
		g.Go(func() error {
			m.worker(gctx)
			return nil
		})
	}
	return errors.WithStack(g.Wait())
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.process(ctx, id)
		}
	}
}

func (m *Manager) process(ctx context.Context, id string) {
	log := m.log.With().Str("task", id).Logger()

	t, err := m.store.Get(ctx, id)
	if err != nil {
		log.Err(err).Msg("failed to load task")
		return
	}

	start := m.now()
	res, err := m.run(ctx, t)
	if ctx.Err() != nil {
		// shutting down, the next start marks the task interrupted
		return
	}
	m.finish(ctx, t, res, err)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("type", string(t.Type)).Str("status", string(t.Status)).Dur("duration", m.now().Sub(start)).Msg("task finished")
}

func (m *Manager) run(ctx context.Context, t *Task) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("processor panic: %v", p)
		}
	}()

	p, ok := m.processors[t.Type]
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedType, "%s", t.Type)
	}
	data, err := m.read(ctx, t.FilePath)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, t, data)
}

func (m *Manager) read(ctx context.Context, p string) ([]byte, error) {
	f, err := m.ost.ReadObject(ctx, p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read upload")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read upload")
	}
	return data, nil
}

func (m *Manager) finish(ctx context.Context, t *Task, res Result, err error) {
	if err != nil {
		t.Status = StatusFailed
		t.Error = err.Error()
	} else {
		t.Status = StatusCompleted
		t.Result = res
	}
	t.UpdatedAt = m.now()
	if uerr := m.store.Update(ctx, t); uerr != nil {
		m.log.Err(uerr).Str("task", t.ID).Msg("failed to update task")
	}
}
