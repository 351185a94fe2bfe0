package query

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"PerpAMM/internal/amm"
	"PerpAMM/internal/core"
	"PerpAMM/internal/ledger"
	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/persistence"
	"PerpAMM/internal/projection"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
)

// ErrNoDatabase is returned by history queries when Postgres is disabled.
var ErrNoDatabase = errors.New("query: postgres disabled")

// QueryService provides read-only access to the engine state and the
// projection tables. Live views are computed from the engine under its
// lock and carry the sequence they reflect; history comes from Postgres.
type QueryService struct {
	eng     *core.Engine
	funding *projection.FundingHistory
	db      *sql.DB
	events  *persistence.EventLogWriter
}

// NewQueryService creates the service. db may be nil.
func NewQueryService(eng *core.Engine, funding *projection.FundingHistory, db *sql.DB) *QueryService {
	qs := &QueryService{eng: eng, funding: funding, db: db}
	if db != nil {
		qs.events = persistence.NewEventLogWriter(db)
	}
	return qs
}

// read runs fn against the engine state and returns the sequence it saw.
func (qs *QueryService) read(fn func(p *ledger.Perpetual, a *amm.AMM) error) (int64, error) {
	var seq int64
	err := qs.eng.Read(func(p *ledger.Perpetual, a *amm.AMM) error {
		seq = qs.eng.SequenceLocked()
		return fn(p, a)
	})
	return seq, err
}

// GetAccount returns an account valued at the current mark price. block
// selects the broker in effect; 0 means the latest.
func (qs *QueryService) GetAccount(ctx context.Context, id uuid.UUID, block uint64) (*AccountResponse, error) {
	resp := &AccountResponse{Account: id}
	seq, err := qs.read(func(p *ledger.Perpetual, a *amm.AMM) error {
		cash := p.Cash(id)
		pos := p.Position(id)
		resp.Cash = Amount(cash.Balance)
		resp.AppliedBalance = Amount(cash.AppliedBalance)
		resp.AppliedHeight = cash.AppliedHeight
		resp.Shares = Amount(a.Shares().BalanceOf(id))
		if block == 0 {
			block = ^uint64(0)
		}
		resp.Broker = p.CurrentBroker(id, block)

		resp.Side = pos.Side.String()
		resp.Size = Amount(pos.Size)
		resp.EntryValue = Amount(pos.EntryValue)
		resp.EntrySocialLoss = Amount(pos.EntrySocialLoss)
		resp.EntryFundingLoss = Amount(pos.EntryFundingLoss)

		m, err := p.Margin(id)
		if err != nil {
			return err
		}
		resp.MarkPrice = Amount(m.MarkPrice)
		resp.UnrealizedPnL = Amount(m.PnL)
		resp.MarginBalance = Amount(m.MarginBalance)
		resp.PositionMargin = Amount(m.PositionMargin)
		resp.MaintenanceMargin = Amount(m.MaintenanceMargin)
		resp.AvailableMargin = Amount(m.AvailableMargin)
		resp.IsSafe = m.IsSafe()
		resp.IsIMSafe = m.IsIMSafe()
		resp.IsBankrupt = m.IsBankrupt()
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.AsOfSequence = seq
	return resp, nil
}

// GetPool returns the pool state. Prices that need a funded pool are left
// empty before the pool is created.
func (qs *QueryService) GetPool(ctx context.Context) (*PoolResponse, error) {
	resp := &PoolResponse{}
	seq, err := qs.read(func(p *ledger.Perpetual, a *amm.AMM) error {
		proxy := a.Proxy()
		pos := p.Position(proxy)
		resp.Proxy = proxy
		resp.Cash = Amount(p.Cash(proxy).Balance)
		resp.PositionSide = pos.Side.String()
		resp.PositionSize = Amount(pos.Size)
		resp.ShareSupply = Amount(a.Shares().TotalSupply())

		fs := a.LastFundingState()
		resp.IndexPrice = Amount(fs.LastIndexPrice)
		resp.IndexTimestamp = fs.LastIndexTimestamp
		resp.AccumulatedFunding = Amount(fs.AccumulatedFundingPerContract)
		resp.LastFundingTime = fs.LastFundingTime

		resp.AvailableMargin = optional(a.CurrentAvailableMargin())
		resp.FairPrice = optional(a.CurrentFairPrice())
		resp.MarkPrice = optional(a.CurrentMarkPrice())
		resp.PremiumRate = optional(a.CurrentPremiumRate())
		resp.FundingRate = optional(a.CurrentFundingRate())
		if acc, err := a.CurrentAccumulatedFundingPerContract(); err == nil {
			resp.AccumulatedFunding = Amount(acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.AsOfSequence = seq
	return resp, nil
}

func optional(v fpmath.Int, err error) string {
	if err != nil {
		return ""
	}
	return Amount(v)
}

// GetQuote returns the average price the pool would fill amount at on the
// given side of the trader.
func (qs *QueryService) GetQuote(ctx context.Context, side state.Side, amount fpmath.Int) (*QuoteResponse, error) {
	var price fpmath.Int
	_, err := qs.read(func(p *ledger.Perpetual, a *amm.AMM) error {
		var err error
		switch side {
		case state.SideLong:
			price, err = a.BuyPrice(amount)
		case state.SideShort:
			price, err = a.SellPrice(amount)
		default:
			err = state.Errorf(state.InvalidParameter, "quote", "side must be long or short")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &QuoteResponse{Side: side.String(), Amount: Amount(amount), Price: Amount(price)}, nil
}

// GetSystem returns protocol-wide state.
func (qs *QueryService) GetSystem(ctx context.Context) (*SystemResponse, error) {
	resp := &SystemResponse{
		Shortfall:         make(map[string]string, 2),
		OpenInterest:      make(map[string]string, 2),
		SocialLossPerUnit: make(map[string]string, 2),
	}
	var hash [32]byte
	seq, err := qs.read(func(p *ledger.Perpetual, a *amm.AMM) error {
		resp.Status = p.Status().String()
		resp.SettlementPrice = Amount(p.SettlementPrice())
		fund := p.InsuranceFund()
		resp.InsuranceFund = Amount(fund.Balance)
		resp.Shortfall[state.SideLong.String()] = Amount(fund.LongShortfall)
		resp.Shortfall[state.SideShort.String()] = Amount(fund.ShortShortfall)
		for _, side := range []state.Side{state.SideLong, state.SideShort} {
			resp.OpenInterest[side.String()] = Amount(p.TotalSize(side))
			resp.SocialLossPerUnit[side.String()] = Amount(p.SocialLossPerContract(side))
		}
		resp.Accounts = len(p.Accounts())

		params, err := paramStrings(p.Params())
		if err != nil {
			return err
		}
		resp.Params = params
		hash = qs.eng.StateHashLocked()
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp.Sequence = seq
	resp.StateHash = hex.EncodeToString(hash[:])
	return resp, nil
}

// paramStrings flattens the parameter record through its JSON form, which
// already renders amounts as decimal strings.
func paramStrings(p state.Params) (map[string]string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprint(v)
	}
	return out, nil
}

// GetFundingHistory returns funding updates with from <= timestamp < to.
// The in-memory history answers when it reaches back to from; otherwise
// the funding projection does.
func (qs *QueryService) GetFundingHistory(ctx context.Context, from, to int64, limit int) ([]FundingPoint, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if qs.funding != nil {
		entries := qs.funding.Range(from, to, limit)
		oldest := qs.funding.Range(0, to, 1)
		if qs.db == nil || (len(oldest) > 0 && oldest[0].Timestamp <= from) {
			points := make([]FundingPoint, len(entries))
			for i, e := range entries {
				points[i] = fundingPoint(e)
			}
			return points, nil
		}
	}
	if qs.db == nil {
		return nil, ErrNoDatabase
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT sequence, timestamp, index_price, index_timestamp, ema_premium, accumulated_funding
		FROM projection.funding_history
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]FundingPoint, 0)
	for rows.Next() {
		var p FundingPoint
		if err := rows.Scan(&p.Sequence, &p.Timestamp, &p.IndexPrice, &p.IndexTimestamp, &p.EMAPremium, &p.AccumulatedFunding); err != nil {
			return nil, err
		}
		p.IndexPrice = normalize(p.IndexPrice)
		p.EMAPremium = normalize(p.EMAPremium)
		p.AccumulatedFunding = normalize(p.AccumulatedFunding)
		points = append(points, p)
	}
	return points, rows.Err()
}

func fundingPoint(e projection.FundingHistoryEntry) FundingPoint {
	return FundingPoint{
		Sequence:           e.Sequence,
		Timestamp:          e.Timestamp,
		IndexPrice:         Amount(e.IndexPrice),
		IndexTimestamp:     e.IndexTimestamp,
		EMAPremium:         Amount(e.EMAPremium),
		AccumulatedFunding: Amount(e.AccumulatedFunding),
	}
}

// normalize strips the trailing zeros Postgres pads NUMERIC(78,18) with.
func normalize(s string) string {
	v, err := ParseAmount(s)
	if err != nil {
		return s
	}
	return Amount(v)
}

// GetTrades returns an account's trades, newest first, with cursor-based
// pagination on sequence.
func (qs *QueryService) GetTrades(ctx context.Context, id uuid.UUID, limit int, beforeSequence *int64) ([]TradeResponse, error) {
	if qs.db == nil {
		return nil, ErrNoDatabase
	}
	query := `
		SELECT sequence, account, side, price, amount, realized_pnl, timestamp
		FROM projection.trades
		WHERE account = $1
	`
	args := []interface{}{id}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := make([]TradeResponse, 0)
	for rows.Next() {
		var t TradeResponse
		if err := rows.Scan(&t.Sequence, &t.Account, &t.Side, &t.Price, &t.Amount, &t.RealizedPnL, &t.Timestamp); err != nil {
			return nil, err
		}
		t.Price = normalize(t.Price)
		t.Amount = normalize(t.Amount)
		t.RealizedPnL = normalize(t.RealizedPnL)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetAccountEvents returns an account's most recent committed events.
func (qs *QueryService) GetAccountEvents(ctx context.Context, id uuid.UUID, limit int) ([]EventResponse, error) {
	if qs.events == nil {
		return nil, ErrNoDatabase
	}
	rows, err := qs.events.LoadAccountEvents(ctx, id, limit)
	if err != nil {
		return nil, err
	}
	events := make([]EventResponse, 0, len(rows))
	for _, r := range rows {
		var payload interface{}
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return nil, fmt.Errorf("event %d: %w", r.Sequence, err)
		}
		events = append(events, EventResponse{
			Sequence:  r.Sequence,
			Op:        r.Op,
			RequestID: r.RequestID,
			EventType: r.EventType,
			Block:     r.Block,
			Timestamp: r.Timestamp,
			Payload:   payload,
		})
	}
	return events, nil
}

// --- Admin APIs ---

// VerifyIntegrity checks the ledger invariants against the live state and,
// when Postgres is enabled, the continuity of the persisted hash chain.
func (qs *QueryService) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{AsOfSequence: qs.eng.GetSequence()}

	if broken := qs.eng.Invariants(); len(broken) > 0 {
		report.BrokenInvariants = make(map[string]string, len(broken))
		for name, err := range broken {
			report.BrokenInvariants[name] = err.Error()
		}
	}

	if qs.db != nil {
		rows, err := qs.db.QueryContext(ctx, `
			SELECT e1.sequence
			FROM event_log.events e1
			LEFT JOIN event_log.events e2 ON e2.sequence = e1.sequence - 1
			WHERE e1.sequence > 1 AND e1.prev_hash != COALESCE(e2.state_hash, e1.prev_hash)
			ORDER BY e1.sequence
			LIMIT 10
		`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		for rows.Next() {
			var seq int64
			if err := rows.Scan(&seq); err != nil {
				return nil, err
			}
			report.HashChainBreaks = append(report.HashChainBreaks, seq)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.BrokenInvariants) == 0
	return report, nil
}
