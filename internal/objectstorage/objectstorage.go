package objectstorage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sorintlab/errors"
)

type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

type ObjectInfo struct {
	Path         string
	LastModified time.Time
	Size         int64
}

type Storage interface {
	Stat(ctx context.Context, filepath string) (*ObjectInfo, error)
	ReadObject(ctx context.Context, filepath string) (ReadSeekCloser, error)
	// WriteObject stores data under filepath. A negative size means unknown.
	WriteObject(ctx context.Context, filepath string, data io.Reader, size int64, persist bool) error
	DeleteObject(ctx context.Context, filepath string) error
	// URL returns a location for the object that can be handed to clients.
	URL(ctx context.Context, filepath string) (string, error)
}

type ErrNotExist struct {
	err error
	msg string
}

func NewErrNotExist(err error, format string, args ...interface{}) error {
	return errors.WithStack(&ErrNotExist{err: err, msg: fmt.Sprintf(format, args...)})
}

func (e *ErrNotExist) Error() string {
	return e.msg
}

func (e *ErrNotExist) Unwrap() error {
	return e.err
}

func IsNotExist(err error) bool {
	var e *ErrNotExist
	return errors.As(err, &e)
}
