package core

import (
	"time"

	"PerpAMM/internal/observability"

	lru "github.com/hashicorp/golang-lru/v2"
)

// IdempotencyChecker deduplicates request ids in two tiers: an in-memory
// LRU of recently committed ids, then the Postgres event log.
//
// Not thread-safe on its own: the engine calls it under its mutex.
type IdempotencyChecker struct {
	// Tier 1
	lru *lru.Cache[string, struct{}]

	// Tier 2 (optional)
	dbChecker DBIdempotencyChecker

	metrics *observability.Metrics
}

// DBIdempotencyChecker is the interface for Postgres dedup lookup
type DBIdempotencyChecker interface {
	IsDuplicate(op string, requestID string) (bool, error)
}

// NewIdempotencyChecker builds a checker holding up to capacity ids in
// memory. dbChecker and metrics may be nil.
func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) (*IdempotencyChecker, error) {
	ic := &IdempotencyChecker{dbChecker: dbChecker, metrics: metrics}
	cache, err := lru.NewWithEvict[string, struct{}](capacity, func(string, struct{}) {
		if ic.metrics != nil {
			ic.metrics.DedupLRUEvictions.Inc()
		}
	})
	if err != nil {
		return nil, err
	}
	ic.lru = cache
	return ic, nil
}

func compositeKey(op, requestID string) string {
	return op + ":" + requestID
}

// IsDuplicate reports whether op/requestID was already committed.
// A failing Postgres lookup is treated as "not seen".
func (ic *IdempotencyChecker) IsDuplicate(op, requestID string) bool {
	key := compositeKey(op, requestID)
	if ic.lru.Contains(key) {
		ic.recordDuplicate(op, "lru")
		return true
	}
	if ic.dbChecker == nil {
		return false
	}

	start := time.Now()
	dup, err := ic.dbChecker.IsDuplicate(op, requestID)
	if ic.metrics != nil {
		ic.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ic.metrics != nil {
			ic.metrics.DedupTier2Errors.Inc()
		}
		return false
	}
	if dup {
		ic.recordDuplicate(op, "postgres")
		ic.lru.Add(key, struct{}{})
	}
	return dup
}

// MarkProcessed remembers a committed request.
func (ic *IdempotencyChecker) MarkProcessed(op, requestID string) {
	ic.lru.Add(compositeKey(op, requestID), struct{}{})
	if ic.metrics != nil {
		ic.metrics.DedupLRUSize.Set(float64(ic.lru.Len()))
	}
}

// Warm preloads composite keys (op:requestID) read back from the event log.
func (ic *IdempotencyChecker) Warm(keys []string) {
	for _, k := range keys {
		ic.lru.Add(k, struct{}{})
	}
}

// Len returns the number of ids held in memory.
func (ic *IdempotencyChecker) Len() int {
	return ic.lru.Len()
}

func (ic *IdempotencyChecker) recordDuplicate(op, tier string) {
	if ic.metrics != nil {
		ic.metrics.IdempotencyDuplicates.WithLabelValues(op, tier).Inc()
	}
}
