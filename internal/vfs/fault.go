package vfs

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

// Errors returned by an armed FaultFS.
var (
	ErrInjectedWriteError = errors.New("vfs: injected write error")
	ErrInjectedSyncError  = errors.New("vfs: injected sync error")
)

// FaultFS wraps an FS and fails writes or syncs on demand.
//
// Faults are armed per path fragment: a fault armed with "wal-" fires for
// every path containing that substring, and an empty fragment matches
// every path. An armed fault stays armed until ClearErrors.
type FaultFS struct {
	base FS

	mu         sync.Mutex
	writeMatch *string
	syncMatch  *string
	injected   int
}

// NewFaultFS creates a fault-injecting wrapper around base.
func NewFaultFS(base FS) *FaultFS {
	return &FaultFS{base: base}
}

var _ FS = (*FaultFS)(nil)

// InjectWriteError makes writes to paths containing match fail.
func (fs *FaultFS) InjectWriteError(match string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.writeMatch = &match
}

// InjectSyncError makes syncs of paths containing match fail.
func (fs *FaultFS) InjectSyncError(match string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.syncMatch = &match
}

// ClearErrors disarms every fault.
func (fs *FaultFS) ClearErrors() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.writeMatch = nil
	fs.syncMatch = nil
}

// Injected returns how many operations failed because of an armed fault.
func (fs *FaultFS) Injected() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.injected
}

func (fs *FaultFS) failWrite(name string) bool { return fs.trip(&fs.writeMatch, name) }
func (fs *FaultFS) failSync(name string) bool  { return fs.trip(&fs.syncMatch, name) }

// trip reports whether the fault armed in *match covers name, counting it
// if so.
func (fs *FaultFS) trip(match **string, name string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if *match == nil || !strings.Contains(name, **match) {
		return false
	}
	fs.injected++
	return true
}

func (fs *FaultFS) Create(name string) (WritableFile, error) {
	if fs.failWrite(name) {
		return nil, ErrInjectedWriteError
	}
	f, err := fs.base.Create(name)
	if err != nil {
		return nil, err
	}
	return &faultWritableFile{base: f, fs: fs, path: name}, nil
}

func (fs *FaultFS) Open(name string) (SequentialFile, error) { return fs.base.Open(name) }

func (fs *FaultFS) ReadFile(name string) ([]byte, error) { return fs.base.ReadFile(name) }

func (fs *FaultFS) WriteFileAtomic(name string, data []byte) error {
	if fs.failWrite(name) {
		return ErrInjectedWriteError
	}
	return fs.base.WriteFileAtomic(name, data)
}

func (fs *FaultFS) Rename(oldname, newname string) error {
	if fs.failWrite(newname) {
		return ErrInjectedWriteError
	}
	return fs.base.Rename(oldname, newname)
}

func (fs *FaultFS) Remove(name string) error { return fs.base.Remove(name) }

func (fs *FaultFS) RemoveAll(path string) error { return fs.base.RemoveAll(path) }

func (fs *FaultFS) MkdirAll(path string, perm os.FileMode) error { return fs.base.MkdirAll(path, perm) }

func (fs *FaultFS) Exists(name string) bool { return fs.base.Exists(name) }

func (fs *FaultFS) ListDir(path string) ([]string, error) { return fs.base.ListDir(path) }

func (fs *FaultFS) Lock(name string) (io.Closer, error) { return fs.base.Lock(name) }

func (fs *FaultFS) SyncDir(path string) error {
	if fs.failSync(path) {
		return ErrInjectedSyncError
	}
	return fs.base.SyncDir(path)
}

type faultWritableFile struct {
	base WritableFile
	fs   *FaultFS
	path string
}

func (f *faultWritableFile) Write(p []byte) (int, error) {
	if f.fs.failWrite(f.path) {
		return 0, ErrInjectedWriteError
	}
	return f.base.Write(p)
}

func (f *faultWritableFile) Close() error {
	return f.base.Close()
}

func (f *faultWritableFile) Sync() error {
	if f.fs.failSync(f.path) {
		return ErrInjectedSyncError
	}
	return f.base.Sync()
}

func (f *faultWritableFile) Size() (int64, error) {
	return f.base.Size()
}
