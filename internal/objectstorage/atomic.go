package objectstorage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// writeFileAtomicFunc atomically writes a file, it achieves this by creating a
// temporary file and then moving it. writeFunc is the func that will write
// data to the file.
func writeFileAtomicFunc(p, baseDir, tmpDir string, perm os.FileMode, persist bool, writeFunc func(f io.Writer) error) error {
	f, err := os.CreateTemp(tmpDir, "tmpfile")
	if err != nil {
		return err
	}
	err = writeFunc(f)
	if persist && err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if permErr := os.Chmod(f.Name(), perm); err == nil {
		err = permErr
	}
	if err == nil {
		err = os.Rename(f.Name(), p)
	}
	if err != nil {
		os.Remove(f.Name())
		return err
	}

	if !persist {
		return nil
	}
	// sync parent dirs
	pdir := filepath.Dir(p)
	for strings.HasPrefix(pdir, baseDir) {
		d, err := os.Open(pdir)
		if err != nil {
			return nil
		}
		_ = d.Sync()
		d.Close()
		pdir = filepath.Dir(pdir)
	}
	return nil
}
