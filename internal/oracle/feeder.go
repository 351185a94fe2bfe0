package oracle

import (
	"errors"
	"fmt"
	"sync"

	fpmath "PerpAMM/internal/math"
)

var (
	// ErrNoPrice is returned before the first price is published.
	ErrNoPrice = errors.New("oracle: no price")
	// ErrStalePrice is returned when a publish goes back in time.
	ErrStalePrice = errors.New("oracle: timestamp must not decrease")
)

// PriceFeeder supplies the index price and the time it was observed
// (seconds).
type PriceFeeder interface {
	IndexPrice() (price fpmath.Int, timestamp int64, err error)
}

// Feeder is an in-memory PriceFeeder written by an upstream price source.
type Feeder struct {
	mu        sync.RWMutex
	price     fpmath.Int
	timestamp int64
	set       bool
}

func NewFeeder() *Feeder {
	return &Feeder{}
}

// SetPrice publishes a price observed at timestamp. Prices must be positive
// and timestamps non-decreasing.
func (f *Feeder) SetPrice(price fpmath.Int, timestamp int64) error {
	if !price.IsPositive() {
		return fmt.Errorf("oracle: price must be positive, got %s", price)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set && timestamp < f.timestamp {
		return fmt.Errorf("%w: %d < %d", ErrStalePrice, timestamp, f.timestamp)
	}
	f.price, f.timestamp, f.set = price, timestamp, true
	return nil
}

func (f *Feeder) IndexPrice() (fpmath.Int, int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.set {
		return fpmath.Zero, 0, ErrNoPrice
	}
	return f.price, f.timestamp, nil
}
