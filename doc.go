/*
Package tabletfuzz is a single-row consistency fuzzer for a pure-Go tablet
storage engine.

A case is a sequence of write and maintenance ops against one row: insert,
update and delete, commits of the buffered writes, MemRowSet and
DeltaMemStore flushes, minor and major delta compactions, full tablet
compaction and, optionally, tablet server restarts. Before every op, and
once after the last, the harness looks the row up through the client and
compares the result with an oracle that only tracks what has been
committed. Maintenance must never be visible to readers, so any
disagreement is a bug in the engine.

# Usage

The fuzz harness lives in internal/fuzz and the command line driver in
cmd/tabletfuzz:

	tabletfuzz run --seed 42 --length 200 --iterations 100
	tabletfuzz generate --seed 42 > case.txt
	tabletfuzz replay case.txt

A failed run prints the case in the same format replay reads.

# Layout

	internal/fuzz         case generator, oracle, executor and harness
	internal/client       sessions, operations and scanners
	internal/cluster      in-process tablet servers
	internal/maintenance  background flush and compaction scheduling
	internal/tablet       the tablet: MemRowSet, DiskRowSets, WAL, superblock
	internal/memrowset    in-memory row store
	internal/rowset       on-disk row store with delta files
	internal/wal          write-ahead log records
*/
package tabletfuzz
