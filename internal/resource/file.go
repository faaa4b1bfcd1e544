package resource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"image-converter/internal/model"
)

// ErrNotRegular is returned for inputs whose size cannot be known up front.
var ErrNotRegular = errors.New("not a regular file")

// FileProvider opens handles as local file paths.
type FileProvider struct{}

// NewFileProvider creates a file system provider.
func NewFileProvider() *FileProvider {
	return &FileProvider{}
}

// OpenInput opens a regular file and reports its size.
func (p *FileProvider) OpenInput(h model.Handle) (io.ReadCloser, int64, error) {
	f, err := os.Open(string(h))
	if err != nil {
		return nil, 0, fmt.Errorf("open input: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat input: %w", err)
	}
	if !stat.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("input %s: %w", h, ErrNotRegular)
	}
	return f, stat.Size(), nil
}

// OpenOutput creates the parent directories and returns a stream that only
// replaces the target file when it is closed successfully. A new file gets the
// permissions os.Create would give it; a replaced file keeps its mode.
func (p *FileProvider) OpenOutput(h model.Handle) (io.WriteCloser, error) {
	path := string(h)
	var keep os.FileMode
	if stat, err := os.Stat(path); err == nil {
		if stat.IsDir() {
			return nil, fmt.Errorf("output %s is a directory", path)
		}
		keep = stat.Mode().Perm()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output parent dir: %w", err)
	}

	tmpPath := filepath.Join(dir, filepath.Base(path)+".tmp."+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		return nil, fmt.Errorf("create temporary output file: %w", err)
	}
	if keep != 0 {
		if err := tmp.Chmod(keep); err != nil {
			tmp.Close()
			_ = os.Remove(tmpPath)
			return nil, fmt.Errorf("keep output file mode: %w", err)
		}
	}
	return &AtomicFile{path: path, tmp: tmp}, nil
}

// AtomicFile writes to a temporary file in the target directory. Close
// renames it over the target; Abort removes it. Only the first of the two
// has an effect.
type AtomicFile struct {
	path string
	tmp  *os.File

	once sync.Once
}

// Write appends to the temporary file.
func (f *AtomicFile) Write(p []byte) (int, error) {
	return f.tmp.Write(p)
}

// Path returns the final target path.
func (f *AtomicFile) Path() string {
	return f.path
}

// Close commits the written data to the target path.
func (f *AtomicFile) Close() error {
	var err error
	f.once.Do(func() {
		tmpPath := f.tmp.Name()
		if cerr := f.tmp.Close(); cerr != nil {
			_ = os.Remove(tmpPath)
			err = fmt.Errorf("close temporary output file: %w", cerr)
			return
		}
		if rerr := os.Rename(tmpPath, f.path); rerr != nil {
			_ = os.Remove(tmpPath)
			err = fmt.Errorf("atomic replace output file: %w", rerr)
		}
	})
	return err
}

// Abort discards the written data, leaving any existing target untouched.
func (f *AtomicFile) Abort() error {
	var err error
	f.once.Do(func() {
		tmpPath := f.tmp.Name()
		cerr := f.tmp.Close()
		rerr := os.Remove(tmpPath)
		if rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = fmt.Errorf("remove temporary output file: %w", rerr)
			return
		}
		if cerr != nil {
			err = fmt.Errorf("close temporary output file: %w", cerr)
		}
	})
	return err
}
