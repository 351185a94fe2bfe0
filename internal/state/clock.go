package state

import (
	"math/bits"

	"github.com/google/uuid"
)

// Call is the context every operation runs in: who is calling and the
// logical clock supplied by the execution environment. Block drives lock
// windows, Timestamp (seconds) drives deadlines and funding.
type Call struct {
	Caller    uuid.UUID
	Block     uint64
	Timestamp int64
}

// As returns a copy of the call made by another identity at the same time.
func (c Call) As(caller uuid.UUID) Call {
	c.Caller = caller
	return c
}

// HeightAfter returns the block n blocks after the call's block.
func (c Call) HeightAfter(op string, n uint64) (uint64, error) {
	h, carry := bits.Add64(c.Block, n, 0)
	if carry != 0 {
		return 0, Errorf(ArithmeticOverflow, op, "block %d plus %d overflows", c.Block, n)
	}
	return h, nil
}
