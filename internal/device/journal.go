package device

import (
	"fmt"
	"sync"
)

// Journal records device commands in the order they were issued, across
// every simulated device sharing it.
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Record appends one formatted event. A nil Journal records nothing.
func (j *Journal) Record(format string, v ...interface{}) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, v...))
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []string {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.events))
	copy(out, j.events)
	return out
}

// Reset discards every recorded event.
func (j *Journal) Reset() {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = nil
}
