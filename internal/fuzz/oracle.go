package fuzz

// Oracle tracks what a reader should see: the row as of the last commit,
// and the row as the most recent staged mutation left it. Both are
// canonical row strings without parentheses; "" means no row.
type Oracle struct {
	committed string
	pending   string
}

// Reset forgets both values.
func (o *Oracle) Reset() { *o = Oracle{} }

// Stage records the row as left by a staged mutation.
func (o *Oracle) Stage(v string) { o.pending = v }

// Commit makes the staged row visible.
func (o *Oracle) Commit() { o.committed = o.pending }

// Committed returns the committed row.
func (o *Oracle) Committed() string { return o.committed }

// Pending returns the row as of the last staged mutation.
func (o *Oracle) Pending() string { return o.pending }

// Expected returns what a point lookup must return.
func (o *Oracle) Expected() string { return "(" + o.committed + ")" }
