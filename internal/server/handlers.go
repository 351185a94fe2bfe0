package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"PerpAMM/internal/core"
	"PerpAMM/internal/observability"
	"PerpAMM/internal/query"
	"PerpAMM/internal/state"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type handlers struct {
	engine  *core.Engine
	qs      *query.QueryService
	metrics *observability.Metrics
	now     func() time.Time
	logger  zerolog.Logger
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string) error

type route struct {
	method   string
	pattern  string
	endpoint string
	fn       handlerFunc
}

func (h *handlers) routes() []route {
	return []route{
		{"GET", "/v1/accounts/{account}", "account", h.getAccount},
		{"GET", "/v1/accounts/{account}/trades", "trades", h.getTrades},
		{"GET", "/v1/accounts/{account}/events", "events", h.getAccountEvents},
		{"GET", "/v1/pool", "pool", h.getPool},
		{"GET", "/v1/pool/quote", "quote", h.getQuote},
		{"GET", "/v1/system", "system", h.getSystem},
		{"GET", "/v1/funding", "funding", h.getFunding},
		{"GET", "/v1/admin/integrity", "integrity", h.verifyIntegrity},
		{"POST", "/v1/commands/{op}", "command", h.handleCommand},
	}
}

// instrument renders handler errors and records request metrics.
func (h *handlers) instrument(endpoint string, fn handlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		err := fn(w, r, params)
		status := "ok"
		if err != nil {
			status = "error"
			httpStatus := writeError(w, err)
			if h.metrics != nil {
				h.metrics.QueryErrors.WithLabelValues(endpoint, Code(err).String()).Inc()
			}
			ev := h.logger.Debug()
			if httpStatus >= http.StatusInternalServerError {
				ev = h.logger.Error()
			}
			ev.Err(err).Str("endpoint", endpoint).Int("status", httpStatus).Msg("request failed")
		}
		if h.metrics != nil {
			h.metrics.QueryRequests.WithLabelValues(endpoint, status).Inc()
			h.metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		}
	}
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	id, err := accountParam(params)
	if err != nil {
		return err
	}
	block, err := uintQuery(r, "block")
	if err != nil {
		return err
	}
	resp, err := h.qs.GetAccount(r.Context(), id, block)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handlers) getTrades(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	id, err := accountParam(params)
	if err != nil {
		return err
	}
	limit, err := limitQuery(r)
	if err != nil {
		return err
	}
	var before *int64
	if s := r.URL.Query().Get("before"); s != "" {
		seq, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: before: %v", errBadRequest, err)
		}
		before = &seq
	}
	trades, err := h.qs.GetTrades(r.Context(), id, limit, before)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"trades": trades})
	return nil
}

func (h *handlers) getAccountEvents(w http.ResponseWriter, r *http.Request, params map[string]string) error {
	id, err := accountParam(params)
	if err != nil {
		return err
	}
	limit, err := limitQuery(r)
	if err != nil {
		return err
	}
	events, err := h.qs.GetAccountEvents(r.Context(), id, limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
	return nil
}

func (h *handlers) getPool(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	resp, err := h.qs.GetPool(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handlers) getQuote(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	q := r.URL.Query()
	side, err := state.ParseSide(q.Get("side"))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	amount, err := decimalField("amount", q.Get("amount"))
	if err != nil {
		return err
	}
	resp, err := h.qs.GetQuote(r.Context(), side, amount)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handlers) getSystem(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	resp, err := h.qs.GetSystem(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, resp)
	return nil
}

func (h *handlers) getFunding(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	from, err := intQuery(r, "from", 0)
	if err != nil {
		return err
	}
	to, err := intQuery(r, "to", h.now().Unix())
	if err != nil {
		return err
	}
	limit, err := limitQuery(r)
	if err != nil {
		return err
	}
	points, err := h.qs.GetFundingHistory(r.Context(), from, to, limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"points": points})
	return nil
}

func (h *handlers) verifyIntegrity(w http.ResponseWriter, r *http.Request, _ map[string]string) error {
	report, err := h.qs.VerifyIntegrity(r.Context())
	if err != nil {
		return err
	}
	status := http.StatusOK
	if !report.IsHealthy {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
	return nil
}

func accountParam(params map[string]string) (uuid.UUID, error) {
	id, err := uuid.Parse(params["account"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: account: %v", errBadRequest, err)
	}
	return id, nil
}

func uintQuery(r *http.Request, name string) (uint64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}

func intQuery(r *http.Request, name string, def int64) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", errBadRequest, name, err)
	}
	return v, nil
}

func limitQuery(r *http.Request) (int, error) {
	v, err := intQuery(r, "limit", defaultPageSize)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v > maxPageSize {
		return 0, fmt.Errorf("%w: limit must be in [1, %d]", errBadRequest, maxPageSize)
	}
	return int(v), nil
}
