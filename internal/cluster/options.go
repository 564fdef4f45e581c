package cluster

import (
	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/maintenance"
	"github.com/aalhour/tabletfuzz/internal/tablet"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// Options configures a mini cluster and its tablet servers.
type Options struct {
	// Dir is the root directory. Tablet server i keeps its data under
	// Dir/ts-<i>.
	Dir string

	// FS is the filesystem every tablet uses.
	FS vfs.FS

	// Logger receives cluster, tablet and maintenance messages.
	Logger logging.Logger

	// Maintenance configures each server's maintenance manager.
	Maintenance maintenance.Options

	// Compression is used for new rowset files.
	Compression compression.Type

	// SyncWAL syncs the WAL after every committed batch.
	SyncWAL bool

	// NumTabletServers is the number of tablet servers to start.
	NumTabletServers int
}

// DefaultOptions returns options for a one-server cluster with background
// maintenance enabled.
func DefaultOptions() Options {
	t := tablet.DefaultOptions()
	return Options{
		FS:               t.FS,
		Logger:           t.Logger,
		Maintenance:      maintenance.DefaultOptions(),
		Compression:      t.Compression,
		SyncWAL:          t.SyncWAL,
		NumTabletServers: 1,
	}
}

func (o Options) tabletOptions() tablet.Options {
	return tablet.Options{
		FS:          o.FS,
		Logger:      o.Logger,
		Compression: o.Compression,
		SyncWAL:     o.SyncWAL,
	}
}
