package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PerpAMM/internal/core"
	"PerpAMM/internal/event"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Statement is one SQL write derived from an event.
type Statement struct {
	SQL  string
	Args []interface{}
}

// ProjectionWorker maintains the read-model tables from committed events.
// It is fed by the non-blocking projection channel: a dropped event leaves
// the tables stale until the next event touching the same rows, or until
// Rebuild replays the event log.
type ProjectionWorker struct {
	db        *sql.DB
	inputChan <-chan core.CoreOutput
	funding   *FundingHistory
	metrics   *observability.Metrics
	logger    zerolog.Logger
	lastSeq   int64
}

// NewProjectionWorker creates a worker. db may be nil, in which case only
// the in-memory funding history is maintained.
func NewProjectionWorker(db *sql.DB, inputChan <-chan core.CoreOutput, funding *FundingHistory, metrics *observability.Metrics, logger zerolog.Logger) *ProjectionWorker {
	return &ProjectionWorker{
		db:        db,
		inputChan: inputChan,
		funding:   funding,
		metrics:   metrics,
		logger:    logger,
	}
}

// Run starts the projection worker loop.
func (pw *ProjectionWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}
			if err := pw.Apply(ctx, output); err != nil {
				// Projections are eventually consistent and can be
				// rebuilt from the event log.
				pw.logger.Warn().Err(err).Int64("sequence", output.Envelope.Sequence).Msg("projection update failed")
			}
			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

// LastSequence returns the sequence of the last event applied.
func (pw *ProjectionWorker) LastSequence() int64 {
	return pw.lastSeq
}

// Apply projects one event.
func (pw *ProjectionWorker) Apply(ctx context.Context, out core.CoreOutput) error {
	if f, ok := out.Event.(*event.FundingUpdated); ok && pw.funding != nil {
		pw.funding.Add(FundingEntryFrom(out.Envelope.Sequence, f))
	}
	if pw.db == nil {
		return nil
	}

	stmts := Plan(out.Envelope, out.Event)
	if len(stmts) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s.SQL, s.Args...); err != nil {
			return fmt.Errorf("%s: %w", out.Envelope.EventType, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if pw.metrics != nil {
		pw.metrics.ProjectionUpdateDur.WithLabelValues(out.Envelope.EventType.String()).Observe(time.Since(start).Seconds())
	}
	return nil
}

func dec(v fpmath.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v.BigInt(), -fpmath.Decimals)
}

const upsertCash = `
	INSERT INTO projection.accounts (account, cash, last_sequence, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (account) DO UPDATE
		SET cash = $2, last_sequence = $3, updated_at = NOW()
		WHERE projection.accounts.last_sequence < $3`

const upsertWithdrawal = `
	INSERT INTO projection.accounts (account, cash, applied_balance, last_sequence, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (account) DO UPDATE
		SET cash = $2, applied_balance = $3, last_sequence = $4, updated_at = NOW()
		WHERE projection.accounts.last_sequence < $4`

const upsertApplied = `
	INSERT INTO projection.accounts (account, applied_balance, applied_height, last_sequence, updated_at)
	VALUES ($1, $2, $3, $4, NOW())
	ON CONFLICT (account) DO UPDATE
		SET applied_balance = $2, applied_height = $3, last_sequence = $4, updated_at = NOW()
		WHERE projection.accounts.last_sequence < $4`

const upsertPosition = `
	INSERT INTO projection.accounts (account, cash, side, size, entry_value, realized_pnl, last_sequence, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	ON CONFLICT (account) DO UPDATE
		SET cash = $2, side = $3, size = $4, entry_value = $5,
		    realized_pnl = projection.accounts.realized_pnl + $6,
		    last_sequence = $7, updated_at = NOW()
		WHERE projection.accounts.last_sequence < $7`

const insertTrade = `
	INSERT INTO projection.trades (sequence, account, side, price, amount, realized_pnl, timestamp)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (sequence) DO NOTHING`

const insertFunding = `
	INSERT INTO projection.funding_history
		(sequence, timestamp, index_price, index_timestamp, ema_premium, accumulated_funding)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (sequence) DO NOTHING`

// Plan returns the writes that project evt. Every account row carries the
// sequence that last wrote it, so replaying an event is a no-op.
func Plan(env *event.EventEnvelope, evt event.Event) []Statement {
	seq := env.Sequence
	cash := func(id uuid.UUID, balance fpmath.Int) Statement {
		return Statement{SQL: upsertCash, Args: []interface{}{id, dec(balance), seq}}
	}

	switch e := evt.(type) {
	case *event.Deposit:
		return []Statement{cash(e.Account, e.Balance)}
	case *event.WithdrawalApplied:
		return []Statement{{SQL: upsertApplied, Args: []interface{}{e.Account, dec(e.Amount), int64(e.AppliedHeight), seq}}}
	case *event.Withdrawal:
		return []Statement{{SQL: upsertWithdrawal, Args: []interface{}{e.Account, dec(e.Balance), dec(e.Applied), seq}}}
	case *event.CashTransfer:
		return []Statement{cash(e.From, e.FromBalance), cash(e.To, e.ToBalance)}
	case *event.CashBalanceSet:
		return []Statement{cash(e.Account, e.Balance)}
	case *event.Liquidation:
		return []Statement{cash(e.Victim, e.VictimBalance), cash(e.Liquidator, e.LiquidatorBalance)}
	case *event.Settle:
		return []Statement{{SQL: upsertWithdrawal, Args: []interface{}{e.Account, dec(fpmath.Zero), dec(fpmath.Zero), seq}}}
	case *event.Trade:
		p := e.Position
		return []Statement{
			{SQL: upsertPosition, Args: []interface{}{
				e.Account, dec(e.Balance), p.Side.String(), dec(p.Size), dec(p.EntryValue), dec(e.RealizedPnL), seq,
			}},
			{SQL: insertTrade, Args: []interface{}{
				seq, e.Account, e.Side.String(), dec(e.Price), dec(e.Amount), dec(e.RealizedPnL), env.Timestamp,
			}},
		}
	case *event.FundingUpdated:
		return []Statement{{SQL: insertFunding, Args: []interface{}{
			seq, e.Timestamp, dec(e.IndexPrice), e.IndexTimestamp, dec(e.EMAPremium), dec(e.AccumulatedFunding),
		}}}
	default:
		return nil
	}
}

// Rebuild truncates the projection tables and replays the event log
// through Plan, page by page.
func Rebuild(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	for _, stmt := range []string{
		`TRUNCATE projection.accounts`,
		`TRUNCATE projection.trades`,
		`TRUNCATE projection.funding_history`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	pw := &ProjectionWorker{db: db, logger: logger}
	const page = 1000
	var next, applied int64 = 1, 0
	for {
		rows, err := db.QueryContext(ctx, `
			SELECT sequence, event_type, timestamp, payload
			FROM event_log.events
			WHERE sequence >= $1
			ORDER BY sequence ASC
			LIMIT $2
		`, next, page)
		if err != nil {
			return err
		}
		var batch []core.CoreOutput
		for rows.Next() {
			env := &event.EventEnvelope{}
			var typ string
			if err := rows.Scan(&env.Sequence, &typ, &env.Timestamp, &env.Payload); err != nil {
				rows.Close()
				return err
			}
			env.EventType = event.ParseEventType(typ)
			evt, err := event.Decode(env.EventType, env.Payload)
			if err != nil {
				rows.Close()
				return fmt.Errorf("event %d: %w", env.Sequence, err)
			}
			batch = append(batch, core.CoreOutput{Envelope: env, Event: evt})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for _, out := range batch {
			if err := pw.Apply(ctx, out); err != nil {
				return err
			}
		}
		applied += int64(len(batch))
		next = batch[len(batch)-1].Envelope.Sequence + 1
	}

	logger.Info().Int64("events", applied).Msg("projection rebuild complete")
	return nil
}
