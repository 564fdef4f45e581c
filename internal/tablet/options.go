package tablet

import (
	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// Options configures a tablet.
type Options struct {
	// FS is the filesystem holding the tablet directory.
	FS vfs.FS

	// Logger receives tablet, flush, compaction and WAL messages.
	Logger logging.Logger

	// Compression is used for newly written rowset files. Existing files
	// keep the codec recorded in their header.
	Compression compression.Type

	// SyncWAL syncs the WAL after every committed batch.
	SyncWAL bool
}

// DefaultOptions returns the default tablet options.
func DefaultOptions() Options {
	return Options{
		FS:          vfs.Default(),
		Logger:      logging.Discard,
		Compression: compression.SnappyCompression,
		SyncWAL:     true,
	}
}

func (o Options) sanitize() Options {
	if o.FS == nil {
		o.FS = vfs.Default()
	}
	if logging.IsNil(o.Logger) {
		o.Logger = logging.Discard
	}
	if !o.Compression.IsSupported() {
		o.Compression = compression.NoCompression
	}
	return o
}

// CreateOptions describes a new tablet.
type CreateOptions struct {
	TabletID  string
	TableName string
	Schema    row.Schema
}
