package state

import fpmath "PerpAMM/internal/math"

// Journal records undo actions for the transaction in flight. Every write to
// ledger or pool state goes through it, so a failed transaction can be
// reverted without partial effects.
//
// Not thread-safe: owned by the serialized engine.
type Journal struct {
	undo   []func()
	active bool
}

// Record registers an action that reverts one write. Outside a transaction
// it is a no-op.
func (j *Journal) Record(undo func()) {
	if j == nil || !j.active {
		return
	}
	j.undo = append(j.undo, undo)
}

// InTransaction reports whether a transaction is open.
func (j *Journal) InTransaction() bool {
	return j != nil && j.active
}

func (j *Journal) begin() {
	j.undo = j.undo[:0]
	j.active = true
}

func (j *Journal) commit() {
	j.undo = j.undo[:0]
	j.active = false
}

func (j *Journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = j.undo[:0]
	j.active = false
}

// Atomic runs fn as one all-or-nothing transaction. Any error, including a
// fixed-point panic raised inside fn, reverts every recorded write. Nested
// calls join the outer transaction.
func Atomic(j *Journal, fn func() error) (err error) {
	if j.active {
		return run(fn)
	}
	j.begin()
	defer func() {
		if err != nil {
			j.rollback()
			return
		}
		j.commit()
	}()
	return run(fn)
}

// View runs fn inside a transaction that is always reverted. Queries use it
// because valuing an account may advance funding state.
func View(j *Journal, fn func() error) error {
	if j.active {
		return run(fn)
	}
	j.begin()
	defer j.rollback()
	return run(fn)
}

func run(fn func() error) (err error) {
	defer fpmath.Recover(&err)
	return fn()
}

// Assign writes v to *dst and records the previous value.
func Assign[T any](j *Journal, dst *T, v T) {
	old := *dst
	j.Record(func() { *dst = old })
	*dst = v
}

// Put writes m[k] = v and records the previous entry.
func Put[K comparable, V any](j *Journal, m map[K]V, k K, v V) {
	old, existed := m[k]
	j.Record(func() {
		if existed {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}
