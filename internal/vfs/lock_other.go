//go:build !unix

package vfs

import (
	"io"
	"os"
)

// lockFile only creates the lock file on platforms without flock(2).
func lockFile(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
