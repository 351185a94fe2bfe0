package core

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"PerpAMM/internal/amm"
	"PerpAMM/internal/collateral"
	"PerpAMM/internal/event"
	"PerpAMM/internal/ledger"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/observability"
	"PerpAMM/internal/oracle"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrDuplicateRequest is returned for a request id that already committed.
var ErrDuplicateRequest = errors.New("duplicate request")

// Config is the genesis configuration of an Engine.
type Config struct {
	Ledger    ledger.Config
	Proxy     uuid.UUID
	Exchanges []uuid.UUID

	IdempotencyCapacity int

	// When set, every commit compares collateral custody with what the
	// ledger owes. The vault must implement Custodian.
	CheckConservation     bool
	ConservationTolerance fpmath.Int
}

// Custodian reports the collateral held by the protocol.
type Custodian interface {
	Custody() fpmath.Int
}

// Request identifies one command: its idempotency key and the call
// context (caller plus logical clock).
type Request struct {
	ID   string
	Call state.Call
}

// Result is what a committed command produced. Price and Amount carry the
// operation's return values where it has them (trade price, liquidation
// price and amount, settlement payout).
type Result struct {
	Events []*event.EventEnvelope
	Price  fpmath.Int
	Amount fpmath.Int
}

// CoreOutput is one sequenced event handed to the persistence and
// projection workers.
type CoreOutput struct {
	Envelope *event.EventEnvelope
	Event    event.Event
}

// Engine serializes every command against one Perpetual and its AMM. Each
// command is a single all-or-nothing transaction; committed events are
// sequenced, hash-chained and fanned out to the workers.
type Engine struct {
	mu sync.Mutex

	perp  *ledger.Perpetual
	amm   *amm.AMM
	vault collateral.Vault

	sequence    int64
	hasher      *StateHasher
	idempotency *IdempotencyChecker
	cfg         Config
	metrics     *observability.Metrics
	logger      zerolog.Logger

	// Logical clock of the last committed command. Blocks and timestamps
	// never move backwards.
	lastBlock     uint64
	lastTimestamp int64

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// NewEngine builds the ledger and AMM from cfg. Either channel may be nil;
// dbChecker and metrics may be nil.
func NewEngine(
	cfg Config,
	vault collateral.Vault,
	feeder oracle.PriceFeeder,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*Engine, error) {
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 1_000_000
	}
	idem, err := NewIdempotencyChecker(cfg.IdempotencyCapacity, dbChecker, metrics)
	if err != nil {
		return nil, fmt.Errorf("idempotency cache: %w", err)
	}

	j := &state.Journal{}
	perp := ledger.New(j, vault, cfg.Ledger)
	a := amm.New(perp, feeder, cfg.Proxy)
	for _, id := range cfg.Exchanges {
		perp.Authorizer().Grant(j, state.RoleExchange, id)
	}

	return &Engine{
		perp:           perp,
		amm:            a,
		vault:          vault,
		hasher:         NewStateHasher(),
		idempotency:    idem,
		cfg:            cfg,
		metrics:        metrics,
		logger:         logger,
		persistChan:    persistChan,
		projectionChan: projectionChan,
	}, nil
}

// execute runs fn as one transaction. The AMM clock moves to the request
// timestamp first, so valuations inside fn see the request's time.
func (e *Engine) execute(req Request, op string, fn func(c state.Call) error) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	if req.ID != "" && e.idempotency.IsDuplicate(op, req.ID) {
		e.reject(op, "duplicate")
		return Result{}, fmt.Errorf("%s %s: %w", op, req.ID, ErrDuplicateRequest)
	}

	if err := e.checkClock(op, req.Call); err != nil {
		e.reject(op, state.KindOf(err).String())
		return Result{}, err
	}

	e.amm.AdvanceTo(req.Call.Timestamp)
	if err := e.perp.Atomic(func() error { return fn(req.Call) }); err != nil {
		e.reject(op, state.KindOf(err).String())
		e.logger.Debug().
			Err(err).
			Str("op", op).
			Str("request_id", req.ID).
			Str("caller", req.Call.Caller.String()).
			Msg("transaction rejected")
		return Result{}, err
	}

	e.lastBlock, e.lastTimestamp = req.Call.Block, req.Call.Timestamp
	envelopes := e.sequenceEvents(req, op)
	if req.ID != "" {
		e.idempotency.MarkProcessed(op, req.ID)
	}
	e.postCommit()

	if e.metrics != nil {
		e.metrics.CoreTxApplied.WithLabelValues(op).Inc()
		e.metrics.CoreTxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}
	return Result{Events: envelopes}, nil
}

func (e *Engine) checkClock(op string, c state.Call) error {
	if c.Block < e.lastBlock {
		return state.Errorf(state.InvalidParameter, op, "block %d is before block %d", c.Block, e.lastBlock)
	}
	if c.Timestamp < e.lastTimestamp {
		return state.Errorf(state.InvalidParameter, op, "timestamp %d is before timestamp %d", c.Timestamp, e.lastTimestamp)
	}
	return nil
}

func (e *Engine) reject(op, reason string) {
	if e.metrics != nil {
		e.metrics.CoreTxRejected.WithLabelValues(op, reason).Inc()
	}
}

// sequenceEvents drains the committed transaction's events, assigns
// sequence numbers, chains them and hands them to the workers.
func (e *Engine) sequenceEvents(req Request, op string) []*event.EventEnvelope {
	start := time.Now()
	events := e.perp.Outbox().Drain()
	envelopes := make([]*event.EventEnvelope, 0, len(events))
	for _, evt := range events {
		payload, err := event.Encode(evt)
		if err != nil {
			// State already committed; an event that cannot be logged
			// would make the log diverge from memory.
			e.logger.Error().Err(err).Str("event_type", evt.EventType().String()).Msg("event encode failed")
			panic(fmt.Sprintf("FATAL: encode %s: %v", evt.EventType(), err))
		}

		e.sequence++
		prev := e.hasher.GetPrevHash()
		hash := e.hasher.ComputeHash(e.sequence, EventDigest(evt.EventType(), payload))
		env := &event.EventEnvelope{
			Sequence:  e.sequence,
			Op:        op,
			RequestID: req.ID,
			EventType: evt.EventType(),
			Account:   evt.AccountID(),
			Block:     req.Call.Block,
			Timestamp: req.Call.Timestamp,
			Payload:   payload,
			StateHash: hash,
			PrevHash:  prev,
		}
		envelopes = append(envelopes, env)
		e.emit(CoreOutput{Envelope: env, Event: evt})
		if e.metrics != nil {
			e.metrics.CoreEventsEmitted.WithLabelValues(evt.EventType().String()).Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(start).Seconds())
	}
	return envelopes
}

// emit blocks on the persist channel (the log must not lose events) and
// drops on a full projection channel (read models catch up from the log).
func (e *Engine) emit(out CoreOutput) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- out
		}
		if e.metrics != nil {
			e.metrics.SetChannelMetrics("persist", len(e.persistChan), cap(e.persistChan))
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("all").Inc()
			}
			e.logger.Warn().Int64("sequence", out.Envelope.Sequence).Msg("projection channel full, event dropped")
		}
	}
}

// postCheckInvariants runs the checks that are too costly for every nested
// call. A breach means the ledger itself is wrong; it is logged and
// counted, never silently repaired.
func (e *Engine) postCheckInvariants() {
	for name, err := range e.invariants() {
		e.breach(name, err)
	}
}

// invariants returns the violated ledger invariants by name.
func (e *Engine) invariants() map[string]error {
	broken := make(map[string]error)
	if err := ledger.ValidatePositions(e.perp); err != nil {
		broken["positions"] = err
	}
	if !e.cfg.CheckConservation {
		return broken
	}
	custodian, ok := e.vault.(Custodian)
	if !ok {
		return broken
	}
	if err := ledger.ValidateConservation(e.perp, custodian.Custody(), e.cfg.ConservationTolerance); err != nil {
		broken["conservation"] = err
	}
	return broken
}

// Invariants evaluates the ledger invariants against the current state.
func (e *Engine) Invariants() map[string]error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.invariants()
}

func (e *Engine) breach(invariant string, err error) {
	e.logger.Error().Err(err).Str("invariant", invariant).Int64("sequence", e.sequence).Msg("invariant breach")
	if e.metrics != nil {
		e.metrics.InvariantBreaches.WithLabelValues(invariant).Inc()
	}
}

func (e *Engine) postCommit() {
	e.postCheckInvariants()
	if e.metrics == nil {
		return
	}
	m := e.metrics
	fund := e.perp.InsuranceFund()
	m.InsuranceFundBalance.Set(observability.Float(fund.Balance))
	m.Shortfall.WithLabelValues("long").Set(observability.Float(fund.LongShortfall))
	m.Shortfall.WithLabelValues("short").Set(observability.Float(fund.ShortShortfall))
	for _, side := range []state.Side{state.SideLong, state.SideShort} {
		m.OpenInterest.WithLabelValues(side.String()).Set(observability.Float(e.perp.TotalSize(side)))
		m.SocialLossPerUnit.WithLabelValues(side.String()).Set(observability.Float(e.perp.SocialLossPerContract(side)))
	}
	pool := e.amm.Proxy()
	m.PoolCash.Set(observability.Float(e.perp.Cash(pool).Balance))
	m.PoolPosition.Set(observability.Float(e.perp.Position(pool).Size))
	m.ShareSupply.Set(observability.Float(e.amm.Shares().TotalSupply()))
	fs := e.amm.LastFundingState()
	m.IndexPrice.Set(observability.Float(fs.LastIndexPrice))
	m.FundingAccumulated.Set(observability.Float(fs.AccumulatedFundingPerContract))
	if price, err := e.amm.CurrentMarkPrice(); err == nil {
		m.MarkPrice.Set(observability.Float(price))
	}
}

// Read runs fn under the engine lock against the current state. Anything
// fn writes is reverted.
func (e *Engine) Read(fn func(p *ledger.Perpetual, a *amm.AMM) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.perp.View(func() error { return fn(e.perp, e.amm) })
}

// Clock returns the block and timestamp of the last committed command.
func (e *Engine) Clock() (block uint64, timestamp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastBlock, e.lastTimestamp
}

// GetSequence returns the last assigned event sequence.
func (e *Engine) GetSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sequence
}

// GetStateHash returns the hash chain tip.
func (e *Engine) GetStateHash() [32]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasher.GetPrevHash()
}

// SequenceLocked returns the last assigned sequence. Only valid inside Read.
func (e *Engine) SequenceLocked() int64 {
	return e.sequence
}

// StateHashLocked returns the hash chain tip. Only valid inside Read.
func (e *Engine) StateHashLocked() [32]byte {
	return e.hasher.GetPrevHash()
}

// Proxy returns the AMM's pool account.
func (e *Engine) Proxy() uuid.UUID {
	return e.amm.Proxy()
}

// WarmLRU preloads committed request keys (op:requestID).
func (e *Engine) WarmLRU(keys []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idempotency.Warm(keys)
}
