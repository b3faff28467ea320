package engine

import "github.com/okanri/machina/pkg/api"

// historyRing is a fixed-capacity ring buffer of left states. The oldest
// entry is evicted when the buffer is full, bounding memory regardless
// of machine lifetime.
//
// Not goroutine-safe; the machine guards it with its own mutex.
type historyRing struct {
	buf   []api.WorkerState
	start int
	n     int
}

func newHistoryRing(capacity int) *historyRing {
	if capacity <= 0 {
		capacity = api.DefaultHistorySize
	}
	return &historyRing{buf: make([]api.WorkerState, capacity)}
}

func (h *historyRing) push(s api.WorkerState) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

func (h *historyRing) len() int { return h.n }

// snapshot returns the buffered states oldest first.
func (h *historyRing) snapshot() []api.WorkerState {
	out := make([]api.WorkerState, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)].Clone()
	}
	return out
}
