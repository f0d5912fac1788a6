package task

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/sorintlab/errors"
)

const tableTask = "task"

func memSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableTask: {
				Name: tableTask,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"status": {
						Name:    "status",
						Indexer: &memdb.StringFieldIndex{Field: "Status"},
					},
				},
			},
		},
	}
}

// MemStore keeps tasks in an in-memory go-memdb database. Tasks do not
// survive a restart.
type MemStore struct {
	db *memdb.MemDB
}

func NewMemStore() (*MemStore, error) {
	db, err := memdb.NewMemDB(memSchema())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &MemStore{db: db}, nil
}

func (s *MemStore) Create(ctx context.Context, t *Task) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(tableTask, "id", t.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if existing != nil {
		return errors.Errorf("task %q already exists", t.ID)
	}
	if err := txn.Insert(tableTask, t.Clone()); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*Task, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(tableTask, "id", id)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if raw == nil {
		return nil, errors.WithStack(ErrNotExist)
	}
	return raw.(*Task).Clone(), nil
}

func (s *MemStore) Update(ctx context.Context, t *Task) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(tableTask, "id", t.ID)
	if err != nil {
		return errors.WithStack(err)
	}
	if raw == nil {
		return errors.WithStack(ErrNotExist)
	}
	if err := txn.Insert(tableTask, t.Clone()); err != nil {
		return errors.WithStack(err)
	}
	txn.Commit()
	return nil
}

func (s *MemStore) FailInterrupted(ctx context.Context, msg string) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	it, err := txn.Get(tableTask, "status", string(StatusProcessing))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	var running []*Task
	for raw := it.Next(); raw != nil; raw = it.Next() {
		running = append(running, raw.(*Task).Clone())
	}
	now := time.Now()
	for _, t := range running {
		t.Status = StatusFailed
		t.Error = msg
		t.UpdatedAt = now
		if err := txn.Insert(tableTask, t); err != nil {
			return 0, errors.WithStack(err)
		}
	}
	txn.Commit()
	return len(running), nil
}

func (s *MemStore) Close() error { return nil }
