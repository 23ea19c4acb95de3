package chat

import "sync"

// streamFanout decouples high-frequency token deltas from the store's
// notification path. Per in-flight message id it keeps an append-only
// buffer and at most one subscriber. Subscribers always receive the full
// accumulated content, not the delta, so attaching mid-stream immediately
// yields everything buffered so far.
type streamFanout struct {
	mu        sync.Mutex
	buffers   map[string]string
	listeners map[string]func(full string)
}

func newStreamFanout() *streamFanout {
	return &streamFanout{
		buffers:   make(map[string]string),
		listeners: make(map[string]func(string)),
	}
}

// start initializes an empty buffer for id and replays it to any subscriber
// already attached.
func (f *streamFanout) start(id string) {
	f.mu.Lock()
	f.buffers[id] = ""
	fn := f.listeners[id]
	f.mu.Unlock()

	if fn != nil {
		fn("")
	}
}

// append adds a delta to the buffer and notifies the subscriber with the
// full content. The buffer is created when absent so late deltas from an
// aborted stream stay harmless.
func (f *streamFanout) append(id, delta string) string {
	f.mu.Lock()
	full := f.buffers[id] + delta
	f.buffers[id] = full
	fn := f.listeners[id]
	f.mu.Unlock()

	if fn != nil {
		fn(full)
	}
	return full
}

// content returns the buffered content for id.
func (f *streamFanout) content(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.buffers[id]
	return s, ok
}

// subscribe registers the single subscriber for id, replacing any previous
// one, and immediately replays already-buffered content. The returned
// function unsubscribes.
func (f *streamFanout) subscribe(id string, fn func(full string)) (unsubscribe func()) {
	f.mu.Lock()
	f.listeners[id] = fn
	buffered, ok := f.buffers[id]
	f.mu.Unlock()

	if ok {
		fn(buffered)
	}

	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

// discard drops the buffer once a message reaches a terminal state.
func (f *streamFanout) discard(id string) {
	f.mu.Lock()
	delete(f.buffers, id)
	f.mu.Unlock()
}

// clearBuffers drops all buffers but keeps subscribers; they unsubscribe
// themselves or observe the interrupted status instead.
func (f *streamFanout) clearBuffers() {
	f.mu.Lock()
	f.buffers = make(map[string]string)
	f.mu.Unlock()
}
