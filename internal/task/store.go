package task

import (
	"context"

	"github.com/sorintlab/errors"
)

var ErrNotExist = errors.New("task not found")

// InterruptedError is the failure message of tasks a previous process left
// running.
const InterruptedError = "interrupted: the service restarted before the task finished"

type Store interface {
	Create(ctx context.Context, t *Task) error
	// Get returns ErrNotExist when no task has the id.
	Get(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	// FailInterrupted marks every processing task as failed and returns how
	// many were changed.
	FailInterrupted(ctx context.Context, msg string) (int, error)
	Close() error
}
