package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/analysis"
	"github.com/aristath/portfolio-engine/internal/modules/history"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/statistics"
)

// Handlers wires the analytics modules to their HTTP endpoints
type Handlers struct {
	log         zerolog.Logger
	historyRepo *history.Repository
	historySvc  *history.Service
	optimizer   *optimization.Service
	analyses    *analysis.Repository
}

// NewHandlers creates the API handlers
func NewHandlers(
	historyRepo *history.Repository,
	historySvc *history.Service,
	optimizer *optimization.Service,
	analyses *analysis.Repository,
	log zerolog.Logger,
) *Handlers {
	return &Handlers{
		log:         log.With().Str("component", "handlers").Logger(),
		historyRepo: historyRepo,
		historySvc:  historySvc,
		optimizer:   optimizer,
		analyses:    analyses,
	}
}

// returnsSource selects where the return series come from: inline series in
// the request body, or stored price history for the named symbols.
type returnsSource struct {
	Symbols  []string             `json:"symbols"`
	Lookback int                  `json:"lookback"`
	Returns  map[string][]float64 `json:"returns,omitempty"`
}

// resolve builds the returns matrix from whichever source was supplied
func (h *Handlers) resolve(src returnsSource) (*statistics.ReturnsMatrix, error) {
	if len(src.Returns) > 0 {
		return statistics.NewReturnsMatrix(src.Returns, src.Symbols)
	}
	return h.historySvc.BuildReturnsMatrix(src.Symbols, src.Lookback)
}

// OptimizeRequest is the request body for POST /api/optimize
type OptimizeRequest struct {
	returnsSource
	Method        string       `json:"method"`
	WeightBounds  [][2]float64 `json:"weight_bounds,omitempty"`
	RiskFreeRate  float64      `json:"risk_free_rate"`
	MaxIterations int          `json:"max_iterations"`
	Store         bool         `json:"store"`

	TargetReturn     *float64 `json:"target_return,omitempty"`
	TargetVolatility *float64 `json:"target_volatility,omitempty"`

	RiskBudgets map[string]float64 `json:"risk_budgets,omitempty"`

	MarketCaps   map[string]float64          `json:"market_caps,omitempty"`
	Views        []optimization.InvestorView `json:"views,omitempty"`
	RiskAversion float64                     `json:"risk_aversion"`
	Tau          float64                     `json:"tau"`

	LinkageMethod string `json:"linkage_method,omitempty"`
}

// HandleOptimize runs one of the portfolio optimizers
// POST /api/optimize
func (h *Handlers) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}

	kind, err := optimization.ParseKind(req.Method)
	if err != nil {
		h.writeError(w, err)
		return
	}

	rm, err := h.resolve(req.returnsSource)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.optimizer.Optimize(optimization.Request{
		Kind:             kind,
		Returns:          rm,
		WeightBounds:     req.WeightBounds,
		RiskFreeRate:     req.RiskFreeRate,
		MaxIterations:    req.MaxIterations,
		TargetReturn:     req.TargetReturn,
		TargetVolatility: req.TargetVolatility,
		RiskBudgets:      req.RiskBudgets,
		MarketCaps:       req.MarketCaps,
		Views:            req.Views,
		RiskAversion:     req.RiskAversion,
		Tau:              req.Tau,
		LinkageMethod:    optimization.Linkage(req.LinkageMethod),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondStored(w, analysis.KindOptimization, rm.Symbols(), result, req.Store)
}

// FrontierRequest is the request body for POST /api/frontier
type FrontierRequest struct {
	returnsSource
	NumPoints     int          `json:"num_points"`
	WeightBounds  [][2]float64 `json:"weight_bounds,omitempty"`
	RiskFreeRate  float64      `json:"risk_free_rate"`
	MaxIterations int          `json:"max_iterations"`
	Store         bool         `json:"store"`
}

// HandleFrontier traces the efficient frontier
// POST /api/frontier
func (h *Handlers) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	var req FrontierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}

	rm, err := h.resolve(req.returnsSource)
	if err != nil {
		h.writeError(w, err)
		return
	}

	builder, err := optimization.NewFrontierBuilder(rm, optimization.FrontierConfig{
		NumPoints:     req.NumPoints,
		WeightBounds:  req.WeightBounds,
		RiskFreeRate:  req.RiskFreeRate,
		MaxIterations: req.MaxIterations,
	}, h.log)
	if err != nil {
		h.writeError(w, err)
		return
	}

	frontier, err := builder.Build()
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondStored(w, analysis.KindFrontier, rm.Symbols(), frontier, req.Store)
}

// VaRRequest is the request body for POST /api/risk/var
type VaRRequest struct {
	returnsSource
	Weights      map[string]float64 `json:"weights,omitempty"`
	Confidence   float64            `json:"confidence"`
	Method       string             `json:"method"`
	Distribution string             `json:"distribution,omitempty"`
	TimeHorizon  int                `json:"time_horizon"`
	Store        bool               `json:"store"`
}

// HandleVaR computes portfolio VaR and CVaR
// POST /api/risk/var
func (h *Handlers) HandleVaR(w http.ResponseWriter, r *http.Request) {
	var req VaRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.95
	}
	if req.Method == "" {
		req.Method = string(risk.MethodHistorical)
	}

	rm, err := h.resolve(req.returnsSource)
	if err != nil {
		h.writeError(w, err)
		return
	}

	portfolio := rm.PortfolioReturns(h.weightsOrEqual(rm, req.Weights))
	result, err := risk.Calculate(portfolio, req.Confidence,
		risk.Method(req.Method), risk.Distribution(req.Distribution), req.TimeHorizon)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondStored(w, analysis.KindRisk, rm.Symbols(), result, req.Store)
}

// StressTestRequest is the request body for POST /api/risk/stress
type StressTestRequest struct {
	returnsSource
	Weights    map[string]float64 `json:"weights,omitempty"`
	Scenarios  map[string]float64 `json:"scenarios"`
	Confidence float64            `json:"confidence"`
	Store      bool               `json:"store"`
}

// HandleStressTest applies flat return shocks per scenario
// POST /api/risk/stress
func (h *Handlers) HandleStressTest(w http.ResponseWriter, r *http.Request) {
	var req StressTestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}
	if len(req.Scenarios) == 0 {
		h.writeError(w, badRequest("no scenarios supplied", domain.ErrInvalidInput))
		return
	}
	if req.Confidence == 0 {
		req.Confidence = 0.95
	}

	rm, err := h.resolve(req.returnsSource)
	if err != nil {
		h.writeError(w, err)
		return
	}

	results, err := risk.StressTest(rm, h.weightsOrEqual(rm, req.Weights), req.Scenarios, req.Confidence)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondStored(w, analysis.KindRisk, rm.Symbols(), results, req.Store)
}

// SimulateRequest is the request body for POST /api/simulate
type SimulateRequest struct {
	returnsSource
	Weights          map[string]float64 `json:"weights,omitempty"`
	NumSimulations   int                `json:"num_simulations"`
	TimeHorizon      int                `json:"time_horizon"`
	InitialValue     float64            `json:"initial_value"`
	ConfidenceLevels []float64          `json:"confidence_levels,omitempty"`
	Seed             int64              `json:"seed"`
	Store            bool               `json:"store"`
}

// HandleSimulate runs a Monte Carlo portfolio simulation
// POST /api/simulate
func (h *Handlers) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}
	if req.InitialValue == 0 {
		req.InitialValue = 10000
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}

	rm, err := h.resolve(req.returnsSource)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sim, err := risk.NewSimulator(rm, h.weightsOrEqual(rm, req.Weights), risk.SimulatorConfig{
		NumSimulations:   req.NumSimulations,
		TimeHorizon:      req.TimeHorizon,
		InitialValue:     req.InitialValue,
		ConfidenceLevels: req.ConfidenceLevels,
		Seed:             req.Seed,
	}, h.log)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := sim.Run()
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.respondStored(w, analysis.KindSimulation, rm.Symbols(), result, req.Store)
}

// HandleStorePrices stores daily closing prices for a symbol
// POST /api/prices/{symbol}
func (h *Handlers) HandleStorePrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var prices []history.DailyPrice
	if err := json.NewDecoder(r.Body).Decode(&prices); err != nil {
		h.writeError(w, badRequest("invalid request body", err))
		return
	}
	if len(prices) == 0 {
		h.writeError(w, badRequest("no prices supplied", domain.ErrInvalidInput))
		return
	}

	if err := h.historyRepo.SaveDailyPrices(symbol, prices); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"status": "ok",
		"symbol": symbol,
		"stored": len(prices),
	})
}

// HandleGetPrices returns stored daily prices for a symbol
// GET /api/prices/{symbol}?limit=N
func (h *Handlers) HandleGetPrices(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, fmt.Errorf("%w: invalid limit %q", domain.ErrInvalidInput, raw))
			return
		}
		limit = n
	}

	prices, err := h.historyRepo.GetDailyPrices(symbol, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, map[string]interface{}{
		"symbol": symbol,
		"prices": prices,
	})
}

// HandleListSymbols returns every symbol with stored price history
// GET /api/symbols
func (h *Handlers) HandleListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.historyRepo.Symbols()
	if err != nil {
		h.writeError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}

	h.writeJSON(w, map[string]interface{}{"symbols": symbols})
}

// HandleListAnalyses lists stored analysis results, newest first
// GET /api/analyses
func (h *Handlers) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	records, err := h.analyses.List(limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []analysis.Record{}
	}

	h.writeJSON(w, map[string]interface{}{"analyses": records})
}

// HandleGetAnalysis fetches one stored analysis with its payload
// GET /api/analyses/{id}
func (h *Handlers) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	record, err := h.analyses.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, record)
}

// HandleHealth is a minimal liveness check
// GET /health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// weightsOrEqual falls back to an equal-weight portfolio when the request
// carries no weights
func (h *Handlers) weightsOrEqual(rm *statistics.ReturnsMatrix, weights map[string]float64) map[string]float64 {
	if len(weights) > 0 {
		return weights
	}
	symbols := rm.Symbols()
	equal := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		equal[s] = 1.0 / float64(len(symbols))
	}
	return equal
}

// respondStored optionally persists the result, then writes it out with the
// stored id when one was created
func (h *Handlers) respondStored(w http.ResponseWriter, kind analysis.Kind, symbols []string, result interface{}, store bool) {
	response := map[string]interface{}{"result": result}

	if store {
		id, err := h.analyses.Save(kind, symbols, result)
		if err != nil {
			// Persisting is best effort; the computation itself succeeded.
			h.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to store analysis result")
		} else {
			response["id"] = id
		}
	}

	h.writeJSON(w, response)
}

// writeJSON writes a JSON response
func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeError maps domain errors to HTTP status codes
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidConfiguration),
		errors.Is(err, domain.ErrConflictingConstraint):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrOptimizationFailed),
		errors.Is(err, domain.ErrNumericalInstability):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	} else {
		h.log.Warn().Err(err).Int("status", status).Msg("Request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func badRequest(msg string, err error) error {
	if errors.Is(err, domain.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, msg, err)
}
