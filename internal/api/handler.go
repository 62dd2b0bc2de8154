package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/analytics"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	svc         *analytics.Service
	cache       domain.Cache
	alertStore  *alerts.Store
	alertEngine *alerts.Engine
	metricTTL   time.Duration
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(svc *analytics.Service, cache domain.Cache, alertStore *alerts.Store, alertEngine *alerts.Engine, metricTTL time.Duration, version string) *Handler {
	if metricTTL <= 0 {
		metricTTL = time.Minute
	}
	return &Handler{
		svc:         svc,
		cache:       cache,
		alertStore:  alertStore,
		alertEngine: alertEngine,
		metricTTL:   metricTTL,
		version:     version,
	}
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": h.version,
	})
}

// Ready handles GET /ready.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "store unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// CreateTransaction handles POST /transactions.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Transactions.Insert(r.Context(), GetTenantID(r.Context()), tx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created"})
}

// CreateTransactionBatch handles POST /transactions/batch.
func (h *Handler) CreateTransactionBatch(w http.ResponseWriter, r *http.Request) {
	var txs []domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Transactions.InsertMany(r.Context(), GetTenantID(r.Context()), txs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "count": len(txs)})
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		Start:      queryTime(q.Get("start")),
		End:        queryTime(q.Get("end")),
		AccountIDs: q["account_id"],
		Statuses:   q["status"],
		Categories: q["category"],
		Limit:      queryInt(q.Get("limit")),
	}

	txs, err := h.svc.Transactions.Get(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// CreateRecurring handles POST /recurring.
func (h *Handler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	var rt domain.RecurringTransaction
	if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Recurring.Insert(r.Context(), GetTenantID(r.Context()), rt); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created"})
}

// CreateRecurringBatch handles POST /recurring/batch.
func (h *Handler) CreateRecurringBatch(w http.ResponseWriter, r *http.Request) {
	var rts []domain.RecurringTransaction
	if err := json.NewDecoder(r.Body).Decode(&rts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Recurring.InsertMany(r.Context(), GetTenantID(r.Context()), rts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "count": len(rts)})
}

// ListRecurring handles GET /recurring.
func (h *Handler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.RecurringFilter{
		Statuses:   q["status"],
		AccountIDs: q["account_id"],
		Limit:      queryInt(q.Get("limit")),
	}

	rts, err := h.svc.Recurring.Get(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if rts == nil {
		rts = []domain.RecurringTransaction{}
	}
	writeJSON(w, http.StatusOK, rts)
}

// CashFlowForecast handles GET /recurring/cash-flow.
func (h *Handler) CashFlowForecast(w http.ResponseWriter, r *http.Request) {
	horizon := queryInt(r.URL.Query().Get("horizon_days"))
	h.cachedMetric(w, r, "cash-flow", func() (any, error) {
		return h.svc.Recurring.CashFlowForecast(r.Context(), GetTenantID(r.Context()), horizon)
	})
}

// RecordMetric handles POST /metrics (the monthly convenience path:
// ARR derived from MRR when absent).
func (h *Handler) RecordMetric(w http.ResponseWriter, r *http.Request) {
	var m domain.BusinessMetric
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Metrics.RecordMonthly(r.Context(), GetTenantID(r.Context()), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created"})
}

// RecordMetricBatch handles POST /metrics/batch.
func (h *Handler) RecordMetricBatch(w http.ResponseWriter, r *http.Request) {
	var ms []domain.BusinessMetric
	if err := json.NewDecoder(r.Body).Decode(&ms); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	if err := h.svc.Metrics.InsertMany(r.Context(), GetTenantID(r.Context()), ms); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "count": len(ms)})
}

// ListMetrics handles GET /metrics.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	filter := metricFilter(r)
	ms, err := h.svc.Metrics.Get(r.Context(), GetTenantID(r.Context()), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	if ms == nil {
		ms = []domain.BusinessMetric{}
	}
	writeJSON(w, http.StatusOK, ms)
}

// CashRunway handles GET /metrics/cash-runway.
func (h *Handler) CashRunway(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cash, err := strconv.ParseFloat(q.Get("current_cash"), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "current_cash is required"})
		return
	}

	input := analytics.CashRunwayInput{CurrentCash: cash}
	if raw := q.Get("burn_rate"); raw != "" {
		burn, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid burn_rate"})
			return
		}
		input.BurnRate = &burn
	}

	h.cachedMetric(w, r, "cash-runway", func() (any, error) {
		return h.svc.Metrics.CashRunway(r.Context(), GetTenantID(r.Context()), input)
	})
}

// CustomerLifetimeValue handles GET /metrics/clv.
func (h *Handler) CustomerLifetimeValue(w http.ResponseWriter, r *http.Request) {
	filter := metricFilter(r)
	h.cachedMetric(w, r, "clv", func() (any, error) {
		return h.svc.Metrics.CustomerLifetimeValue(r.Context(), GetTenantID(r.Context()), filter)
	})
}

// RevenueByCategory handles GET /metrics/revenue-by-category.
func (h *Handler) RevenueByCategory(w http.ResponseWriter, r *http.Request) {
	filter := metricFilter(r)
	h.cachedMetric(w, r, "revenue-by-category", func() (any, error) {
		return h.svc.Metrics.RevenueByCategory(r.Context(), GetTenantID(r.Context()), filter)
	})
}

// ExpensesByCostType handles GET /metrics/expenses-by-cost-type.
func (h *Handler) ExpensesByCostType(w http.ResponseWriter, r *http.Request) {
	filter := metricFilter(r)
	h.cachedMetric(w, r, "expenses-by-cost-type", func() (any, error) {
		return h.svc.Metrics.ExpensesByCostType(r.Context(), GetTenantID(r.Context()), filter)
	})
}

// ListAlerts handles GET /alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	rules, err := h.alertStore.List(r.Context(), GetTenantID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if rules == nil {
		rules = []domain.AlertRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

// CreateAlert handles POST /alerts.
func (h *Handler) CreateAlert(w http.ResponseWriter, r *http.Request) {
	var rule domain.AlertRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	if err := h.alertEngine.Validate(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.alertStore.Save(r.Context(), GetTenantID(r.Context()), &rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "id": rule.ID})
}

// DeleteAlert handles DELETE /alerts/{id}.
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.alertStore.Delete(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// EvaluateAlertsRequest is the request body for POST /alerts/evaluate.
type EvaluateAlertsRequest struct {
	CurrentCash float64 `json:"currentCash"`
	HorizonDays int     `json:"horizonDays"`
}

// EvaluateAlerts handles POST /alerts/evaluate: compute the metric
// snapshot, then run every enabled rule against it.
func (h *Handler) EvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req EvaluateAlertsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON request body"})
		return
	}

	rules, err := h.alertStore.List(ctx, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	runway, err := h.svc.Metrics.CashRunway(ctx, tenantID, analytics.CashRunwayInput{CurrentCash: req.CurrentCash})
	if err != nil {
		writeError(w, err)
		return
	}
	clv, err := h.svc.Metrics.CustomerLifetimeValue(ctx, tenantID, domain.MetricFilter{})
	if err != nil {
		writeError(w, err)
		return
	}
	forecast, err := h.svc.Recurring.CashFlowForecast(ctx, tenantID, req.HorizonDays)
	if err != nil {
		writeError(w, err)
		return
	}

	snap := alerts.Snapshot{
		CurrentCash:       runway.CurrentCash,
		BurnRate:          runway.BurnRate,
		RunwayMonths:      runway.RunwayMonths,
		ProjectedIncome:   forecast.ProjectedIncome,
		ProjectedExpenses: forecast.ProjectedExpenses,
		NetCashFlow:       forecast.NetCashFlow,
		RunwayDefined:     runway.BurnRate > 0,
	}
	if runway.RevenueGrowth != nil {
		snap.RevenueGrowth = *runway.RevenueGrowth
	}
	if runway.ExpenseGrowth != nil {
		snap.ExpenseGrowth = *runway.ExpenseGrowth
	}
	if clv.ChurnRate != nil {
		snap.ChurnRate = *clv.ChurnRate
		snap.ChurnDefined = true
	}
	if clv.CLV != nil {
		snap.CLV = *clv.CLV
		snap.CLVDefined = true
	}

	results := h.alertEngine.Evaluate(ctx, rules, snap)
	writeJSON(w, http.StatusOK, map[string]any{
		"results":  results,
		"snapshot": snap.Values(),
	})
}

// cachedMetric serves a derived metric read-through the result cache,
// keyed on metric name plus the request's canonical query string.
func (h *Handler) cachedMetric(w http.ResponseWriter, r *http.Request, name string, compute func() (any, error)) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	key := "metric:" + name + "?" + r.URL.Query().Encode()

	if h.cache != nil {
		if cached, err := h.cache.Get(ctx, tenantID, key); err == nil && cached != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	result, err := compute()
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, tenantID, key, payload, h.metricTTL); err != nil {
			slog.Warn("failed to cache metric", "metric", name, "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func metricFilter(r *http.Request) domain.MetricFilter {
	q := r.URL.Query()
	return domain.MetricFilter{
		Start: queryTime(q.Get("start")),
		End:   queryTime(q.Get("end")),
		Limit: queryInt(q.Get("limit")),
	}
}

// queryTime parses an epoch-millisecond query parameter.
func queryTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func queryInt(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var bindErr *domain.BindError
	var queryErr *domain.QueryError
	var insertErr *domain.InsertError
	var decodeErr *domain.DecodeError

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.As(err, &bindErr):
		status = http.StatusBadRequest
	case errors.As(err, &insertErr):
		if insertErr.Status == 0 && insertErr.Err != nil {
			// Batch failed shape validation before any write.
			status = http.StatusBadRequest
		} else {
			status = http.StatusBadGateway
		}
	case errors.As(err, &queryErr), errors.As(err, &decodeErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
