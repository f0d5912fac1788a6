package objectstorage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sorintlab/errors"
)

const (
	dataDirName = "data"
	tmpDirName  = "tmp"
)

type PosixStorage struct {
	dataDir string
	tmpDir  string
}

func NewPosix(baseDir string) (*PosixStorage, error) {
	if err := os.MkdirAll(baseDir, 0770); err != nil {
		return nil, errors.WithStack(err)
	}
	baseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dataDir := filepath.Join(baseDir, dataDirName)
	tmpDir := filepath.Join(baseDir, tmpDirName)
	if err := os.MkdirAll(dataDir, 0770); err != nil {
		return nil, errors.Wrapf(err, "failed to create data dir")
	}
	if err := os.MkdirAll(tmpDir, 0770); err != nil {
		return nil, errors.Wrapf(err, "failed to create tmp dir")
	}
	return &PosixStorage{
		dataDir: dataDir,
		tmpDir:  tmpDir,
	}, nil
}

// fsPath maps an object path inside the data dir, rejecting paths that
// escape it.
func (s *PosixStorage) fsPath(p string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(p))
	if clean == "/" || strings.Contains(p, "..") {
		return "", errors.Errorf("invalid object path %q", p)
	}
	return filepath.Join(s.dataDir, filepath.FromSlash(clean)), nil
}

func (s *PosixStorage) Stat(ctx context.Context, p string) (*ObjectInfo, error) {
	fspath, err := s.fsPath(p)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	fi, err := os.Stat(fspath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewErrNotExist(err, "object %q doesn't exist", p)
		}
		return nil, errors.WithStack(err)
	}

	return &ObjectInfo{Path: p, LastModified: fi.ModTime(), Size: fi.Size()}, nil
}

func (s *PosixStorage) ReadObject(ctx context.Context, p string) (ReadSeekCloser, error) {
	fspath, err := s.fsPath(p)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	f, err := os.Open(fspath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, NewErrNotExist(err, "object %q doesn't exist", p)
		}
		return nil, errors.WithStack(err)
	}
	return f, nil
}

func (s *PosixStorage) WriteObject(ctx context.Context, p string, data io.Reader, size int64, persist bool) error {
	fspath, err := s.fsPath(p)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := os.MkdirAll(filepath.Dir(fspath), 0770); err != nil {
		return errors.WithStack(err)
	}

	r := data
	if size >= 0 {
		r = io.LimitReader(data, size)
	}
	return errors.WithStack(writeFileAtomicFunc(fspath, s.dataDir, s.tmpDir, 0660, persist, func(f io.Writer) error {
		_, err := io.Copy(f, r)
		return errors.WithStack(err)
	}))
}

func (s *PosixStorage) DeleteObject(ctx context.Context, p string) error {
	fspath, err := s.fsPath(p)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := os.Remove(fspath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewErrNotExist(err, "object %q doesn't exist", p)
		}
		return errors.WithStack(err)
	}

	// try to remove parent empty dirs
	pdir := filepath.Dir(fspath)
	for pdir != s.dataDir && strings.HasPrefix(pdir, s.dataDir) {
		if err := os.Remove(pdir); err != nil {
			break
		}
		pdir = filepath.Dir(pdir)
	}
	return nil
}

// URL returns the object path relative to the storage root.
func (s *PosixStorage) URL(ctx context.Context, p string) (string, error) {
	if _, err := s.Stat(ctx, p); err != nil {
		return "", err
	}
	return path.Clean("/" + filepath.ToSlash(p))[1:], nil
}
