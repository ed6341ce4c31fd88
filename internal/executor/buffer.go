package executor

import (
	"strings"
	"sync"
)

// boundedBuffer accumulates output lines up to a byte cap, then drops the
// rest. Runaway child output must not grow the engine's own memory without
// bound.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       strings.Builder
	max       int
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) writeLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return
	}
	if b.buf.Len()+len(line)+1 > b.max {
		b.truncated = true
		return
	}
	b.buf.WriteString(line)
	b.buf.WriteByte('\n')
}

// markTruncated records that output was dropped mid-stream.
func (b *boundedBuffer) markTruncated() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.truncated = true
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "[output truncated]\n"
	}
	return b.buf.String()
}
