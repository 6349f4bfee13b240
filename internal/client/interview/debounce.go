package interview

import (
	"sync"
	"time"
)

// Debouncer coalesces trailing writes per key: repeated Schedule calls
// within the interval replace the pending value and restart the timer,
// so a burst of calls results in one flush carrying the last value.
//
// The window is a deliberate durability trade: a crash inside it loses
// the edits scheduled since the last flush. Callers that cannot accept
// that for an operation should call Flush around it.
type Debouncer struct {
	interval time.Duration
	flush    func(id string, data []byte)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	pending map[string][]byte
	closed  bool
}

// NewDebouncer builds a debouncer that calls flush once per key after
// interval of quiet. flush runs on a timer goroutine.
func NewDebouncer(interval time.Duration, flush func(id string, data []byte)) *Debouncer {
	return &Debouncer{
		interval: interval,
		flush:    flush,
		timers:   make(map[string]*time.Timer),
		pending:  make(map[string][]byte),
	}
}

// Schedule records data as the key's pending value and restarts its
// trailing timer. After Close it flushes immediately instead.
func (d *Debouncer) Schedule(id string, data []byte) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.flush(id, data)
		return
	}

	d.pending[id] = data
	if t, ok := d.timers[id]; ok {
		t.Stop()
	}
	d.timers[id] = time.AfterFunc(d.interval, func() { d.Flush(id) })
	d.mu.Unlock()
}

// Pending returns the not-yet-flushed value for the key, if any.
func (d *Debouncer) Pending(id string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.pending[id]
	return data, ok
}

// Flush writes the key's pending value now, if one exists.
func (d *Debouncer) Flush(id string) {
	d.mu.Lock()
	data, ok := d.pending[id]
	if ok {
		delete(d.pending, id)
		if t, exists := d.timers[id]; exists {
			t.Stop()
			delete(d.timers, id)
		}
	}
	d.mu.Unlock()

	if ok {
		d.flush(id, data)
	}
}

// Cancel drops the key's pending value without flushing it.
func (d *Debouncer) Cancel(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
	if t, ok := d.timers[id]; ok {
		t.Stop()
		delete(d.timers, id)
	}
}

// Close flushes every pending value and makes later Schedule calls
// write through immediately.
func (d *Debouncer) Close() {
	d.mu.Lock()
	d.closed = true
	for id, t := range d.timers {
		t.Stop()
		delete(d.timers, id)
	}
	remaining := d.pending
	d.pending = make(map[string][]byte)
	d.mu.Unlock()

	for id, data := range remaining {
		d.flush(id, data)
	}
}
