package event

import "PerpAMM/internal/state"

// Outbox buffers events of the transaction in flight. Emitted events are
// journaled, so a rolled-back transaction leaves nothing behind.
type Outbox struct {
	j       *state.Journal
	pending []Event
}

func NewOutbox(j *state.Journal) *Outbox {
	return &Outbox{j: j}
}

// Emit appends e.
func (o *Outbox) Emit(e Event) {
	n := len(o.pending)
	o.j.Record(func() { o.pending = o.pending[:n] })
	o.pending = append(o.pending, e)
}

// Drain returns and clears the buffered events. Call it after commit.
func (o *Outbox) Drain() []Event {
	out := o.pending
	o.pending = nil
	return out
}

// Len returns the number of buffered events.
func (o *Outbox) Len() int {
	return len(o.pending)
}
