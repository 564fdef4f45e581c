// Package vfs provides the filesystem abstraction used by the tablet engine.
//
// Everything a tablet persists (WAL segments, rowset files, the superblock
// and the lock file) goes through FS, so tests can swap in FaultFS to make
// writes or syncs fail at a chosen point.
package vfs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// FS is the set of file operations a tablet needs.
type FS interface {
	// Create opens name for writing, truncating any existing file.
	Create(name string) (WritableFile, error)
	Open(name string) (SequentialFile, error)
	ReadFile(name string) ([]byte, error)

	// WriteFileAtomic replaces name with data. A crash leaves either the
	// old contents or the new ones.
	WriteFileAtomic(name string, data []byte) error

	Rename(oldname, newname string) error
	Remove(name string) error
	RemoveAll(path string) error
	MkdirAll(path string, perm os.FileMode) error
	Exists(name string) bool

	// ListDir returns the entry names of dir in lexical order.
	ListDir(dir string) ([]string, error)

	// Lock takes an exclusive lock on name, failing at once if another
	// holder has it. Closing the result releases the lock.
	Lock(name string) (io.Closer, error)

	// SyncDir makes creations, renames and removals in dir durable.
	SyncDir(dir string) error
}

// WritableFile is an append-only file.
type WritableFile interface {
	io.WriteCloser
	Sync() error
	Size() (int64, error)
}

// SequentialFile is a file read front to back.
type SequentialFile interface {
	io.ReadCloser
}

// Default returns the operating system's filesystem.
func Default() FS { return osFS{} }

type osFS struct{}

func (osFS) Create(name string) (WritableFile, error) {
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	return osFile{f}, nil
}

func (osFS) Open(name string) (SequentialFile, error) { return os.Open(name) }
func (osFS) ReadFile(name string) ([]byte, error)     { return os.ReadFile(name) }
func (osFS) Rename(oldname, newname string) error     { return os.Rename(oldname, newname) }
func (osFS) Remove(name string) error                 { return os.Remove(name) }
func (osFS) RemoveAll(path string) error              { return os.RemoveAll(path) }
func (osFS) Lock(name string) (io.Closer, error)      { return lockFile(name) }

func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (osFS) WriteFileAtomic(name string, data []byte) error {
	return atomic.WriteFile(name, bytes.NewReader(data))
}

func (osFS) Exists(name string) bool {
	_, err := os.Lstat(name)
	return err == nil
}

func (osFS) ListDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (osFS) SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

type osFile struct{ *os.File }

func (f osFile) Size() (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
