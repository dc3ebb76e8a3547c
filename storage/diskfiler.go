package storage

import (
	"errors"
	"io"
	"os"

	"github.com/cznic/mathutil"
)

// DiskFiler is an os.File-backed Filer. Unlike cznic-exp/lldb's split
// between a SimpleFileFiler (no transactional story at all) and an
// OSFiler (same, over a narrower OSFile interface), there is exactly one
// disk-backed Filer here: the B-tree only ever needs "trust the caller,
// fsync on Close", since anything stronger is layered on top by TxFiler.
type DiskFiler struct {
	file *os.File
	size int64
}

var _ Filer = (*DiskFiler)(nil)

// OpenDiskFiler opens (creating if necessary) the file at path as a
// DiskFiler.
func OpenDiskFiler(path string) (*DiskFiler, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &ErrIO{Src: "OpenDiskFiler", Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &ErrIO{Src: "OpenDiskFiler", Err: err}
	}
	return &DiskFiler{file: f, size: fi.Size()}, nil
}

func (f *DiskFiler) BeginUpdate() error { return nil }
func (f *DiskFiler) EndUpdate() error   { return nil }
func (f *DiskFiler) Rollback() error    { return nil }
func (f *DiskFiler) Name() string       { return f.file.Name() }
func (f *DiskFiler) Size() int64        { return f.size }

// Close flushes the file to stable storage with a best-effort fsync before
// closing it.
func (f *DiskFiler) Close() error {
	if err := f.file.Sync(); err != nil {
		return &ErrIO{Src: f.Name() + ":Close(sync)", Err: err}
	}
	if err := f.file.Close(); err != nil {
		return &ErrIO{Src: f.Name() + ":Close", Err: err}
	}
	return nil
}

func (f *DiskFiler) ReadAt(b []byte, off int64) (int, error) {
	n, err := f.file.ReadAt(b, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, &ErrIO{Src: f.Name() + ":ReadAt", Err: err}
	}
	return n, err
}

func (f *DiskFiler) WriteAt(b []byte, off int64) (int, error) {
	n, err := f.file.WriteAt(b, off)
	if err != nil {
		return n, &ErrIO{Src: f.Name() + ":WriteAt", Err: err}
	}
	f.size = mathutil.MaxInt64(f.size, off+int64(n))
	return n, nil
}

func (f *DiskFiler) Truncate(size int64) error {
	if size < 0 {
		return &ErrINVAL{Src: f.Name() + ":Truncate size", Val: size}
	}
	if err := f.file.Truncate(size); err != nil {
		return &ErrIO{Src: f.Name() + ":Truncate", Err: err}
	}
	f.size = size
	return nil
}
