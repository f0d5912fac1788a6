package objectstorage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func TestPosixReadWrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ls, err := NewPosix(dir)
	assert.NilError(t, err)

	var s Storage = ls
	assert.NilError(t, s.WriteObject(ctx, "uploaded_ocr/abc.png", strings.NewReader("hello world"), 5, true))

	oi, err := s.Stat(ctx, "uploaded_ocr/abc.png")
	assert.NilError(t, err)
	assert.Equal(t, oi.Size, int64(5))

	r, err := s.ReadObject(ctx, "uploaded_ocr/abc.png")
	assert.NilError(t, err)
	data, err := io.ReadAll(r)
	r.Close()
	assert.NilError(t, err)
	assert.Equal(t, string(data), "hello")

	u, err := s.URL(ctx, "/uploaded_ocr/abc.png")
	assert.NilError(t, err)
	assert.Equal(t, u, "uploaded_ocr/abc.png")

	// overwrite with unknown size
	assert.NilError(t, s.WriteObject(ctx, "uploaded_ocr/abc.png", bytes.NewReader([]byte("replaced")), -1, false))
	oi, err = s.Stat(ctx, "uploaded_ocr/abc.png")
	assert.NilError(t, err)
	assert.Equal(t, oi.Size, int64(8))

	// tmp dir is left empty by atomic writes
	entries, err := os.ReadDir(filepath.Join(dir, tmpDirName))
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 0)
}

func TestPosixDeleteObject(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ls, err := NewPosix(dir)
	assert.NilError(t, err)

	objects := []string{"/", "/a", "/a/b", "a/b/c", "a/b/c/d"}
	for _, obj := range objects[1:] {
		assert.NilError(t, ls.WriteObject(ctx, obj+"/file", strings.NewReader("x"), -1, false))
	}
	for _, obj := range objects[1:] {
		assert.NilError(t, ls.DeleteObject(ctx, obj+"/file"))
	}

	// all the parent empty dirs are removed
	entries, err := os.ReadDir(filepath.Join(dir, dataDirName))
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 0)

	err = ls.DeleteObject(ctx, "a/missing")
	assert.Assert(t, IsNotExist(err), "got %v", err)
}

func TestPosixNotExistAndTraversal(t *testing.T) {
	ctx := context.Background()
	ls, err := NewPosix(t.TempDir())
	assert.NilError(t, err)

	_, err = ls.Stat(ctx, "nope")
	assert.Assert(t, IsNotExist(err))
	_, err = ls.ReadObject(ctx, "nope")
	assert.Assert(t, IsNotExist(err))
	_, err = ls.URL(ctx, "nope")
	assert.Assert(t, IsNotExist(err))

	for _, p := range []string{"../escape", "a/../../b", "", "/"} {
		err := ls.WriteObject(ctx, p, strings.NewReader("x"), -1, false)
		assert.ErrorContains(t, err, "invalid object path")
		assert.Assert(t, !IsNotExist(err))
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, contentType("tts/x.mp3"), "audio/mpeg")
	assert.Equal(t, contentType("a.bin"), "application/octet-stream")
}
