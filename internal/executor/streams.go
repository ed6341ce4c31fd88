package executor

// Live-output fan-out. Subscribers receive "output:<line>" messages while
// the process runs and a final "complete:<status>" message. Slow consumers
// are skipped rather than allowed to stall the execution.

// Subscribe returns a channel of live messages for the given execution.
// The caller must Unsubscribe when done.
func (e *Executor) Subscribe(id string) chan string {
	ch := make(chan string, 100)

	e.streamsMu.Lock()
	e.streams[id] = append(e.streams[id], ch)
	e.streamsMu.Unlock()

	return ch
}

// Unsubscribe removes and closes a channel previously returned by Subscribe.
func (e *Executor) Unsubscribe(id string, ch chan string) {
	e.streamsMu.Lock()
	defer e.streamsMu.Unlock()

	channels := e.streams[id]
	for i, c := range channels {
		if c == ch {
			e.streams[id] = append(channels[:i], channels[i+1:]...)
			close(ch)
			break
		}
	}

	if len(e.streams[id]) == 0 {
		delete(e.streams, id)
	}
}

func (e *Executor) broadcastLine(id, line string) {
	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()

	for _, ch := range e.streams[id] {
		select {
		case ch <- "output:" + line:
		default:
		}
	}
}

func (e *Executor) broadcastComplete(id string, status Status) {
	e.streamsMu.RLock()
	defer e.streamsMu.RUnlock()

	for _, ch := range e.streams[id] {
		select {
		case ch <- "complete:" + string(status):
		default:
		}
	}
}
