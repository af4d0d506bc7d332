package repo

// ChunkedCommitter wraps a persistence flush behind a counter so long loops
// can bound transaction size: flushing every row kills throughput, never
// flushing grows the working set and lock duration without bound.
type ChunkedCommitter struct {
	flush   func() error
	pending int
}

// NewChunkedCommitter creates a committer around the given flush action.
func NewChunkedCommitter(flush func() error) *ChunkedCommitter {
	return &ChunkedCommitter{flush: flush}
}

// Increment records one unit of buffered work.
func (c *ChunkedCommitter) Increment() {
	c.pending++
}

// Pending returns the number of increments since the last flush.
func (c *ChunkedCommitter) Pending() int {
	return c.pending
}

// InvokeIfChunk flushes and resets the counter once size increments have
// accumulated.
func (c *ChunkedCommitter) InvokeIfChunk(size int) error {
	if c.pending < size {
		return nil
	}
	return c.Invoke()
}

// InvokeIfAny flushes if any increments are pending.
func (c *ChunkedCommitter) InvokeIfAny() error {
	if c.pending == 0 {
		return nil
	}
	return c.Invoke()
}

// Invoke always flushes and resets the counter.
func (c *ChunkedCommitter) Invoke() error {
	c.pending = 0
	return c.flush()
}
