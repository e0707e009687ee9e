package server

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skagen/papertrader/internal/modules/ledger"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "papertrader",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handlePortfolio returns the cash position and all stock positions
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	cash, err := s.store.Cash()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load cash position")
		s.writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	positions, err := s.store.StockPositions()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load stock positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load portfolio")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash":      cash,
		"positions": positions,
	})
}

// handlePortfolioSummary returns aggregate portfolio figures, including the
// ledger conservation check (sum of transaction amounts vs cash total).
func (s *Server) handlePortfolioSummary(w http.ResponseWriter, r *http.Request) {
	cash, err := s.store.Cash()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load cash position")
		s.writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	positions, err := s.store.StockPositions()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load stock positions")
		s.writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	pending, err := s.store.PendingOrders()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load pending orders")
		s.writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	txSum, err := s.store.SumTransactionAmounts()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to sum transactions")
		s.writeError(w, http.StatusInternalServerError, "failed to load summary")
		return
	}

	bookValue := cash.TotalValue
	for _, p := range positions {
		bookValue += float64(p.Shares) * p.AvgCost
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"cash_total":        cash.TotalValue,
		"cash_available":    cash.Available,
		"positions_held":    len(positions),
		"pending_orders":    len(pending),
		"book_value":        bookValue,
		"transaction_sum":   txSum,
		"ledger_consistent": math.Abs(txSum-cash.TotalValue) < 1e-6,
	})
}

// handleValueHistory returns the daily portfolio value series
func (s *Server) handleValueHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.store.PortfolioValueHistory()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load value history")
		s.writeError(w, http.StatusInternalServerError, "failed to load value history")
		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

// handleOrders returns orders, optionally filtered by ?status=
func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []ledger.Order
		err    error
	)

	switch status := strings.ToUpper(r.URL.Query().Get("status")); status {
	case "":
		orders, err = s.store.Orders()
	case string(ledger.StatusPending), string(ledger.StatusExecuted), string(ledger.StatusCanceled):
		orders, err = s.store.OrdersByStatus(ledger.OrderStatus(status))
	default:
		s.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load orders")
		s.writeError(w, http.StatusInternalServerError, "failed to load orders")
		return
	}

	s.writeJSON(w, http.StatusOK, orders)
}

// handleOrder returns a single order by ID
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.store.Order(chi.URLParam(r, "id"))
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load order")
		s.writeError(w, http.StatusInternalServerError, "failed to load order")
		return
	}
	if order == nil {
		s.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	s.writeJSON(w, http.StatusOK, order)
}

// handleTransactions returns the full transaction history, oldest first
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	transactions, err := s.store.Transactions()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load transactions")
		s.writeError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}

	s.writeJSON(w, http.StatusOK, transactions)
}

type cashRequest struct {
	Amount float64 `json:"amount"`
}

// handleDeposit credits external cash into the ledger
func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.Deposit(req.Amount, time.Now()); err != nil {
		s.writeCashError(w, err, "deposit failed")
		return
	}

	cash, err := s.store.Cash()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load cash after deposit")
		s.writeError(w, http.StatusInternalServerError, "deposit recorded but cash lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, cash)
}

// handleWithdraw debits cash out of the ledger, limited to available cash
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req cashRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.store.Withdraw(req.Amount, time.Now()); err != nil {
		s.writeCashError(w, err, "withdrawal failed")
		return
	}

	cash, err := s.store.Cash()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load cash after withdrawal")
		s.writeError(w, http.StatusInternalServerError, "withdrawal recorded but cash lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, cash)
}

// handleTradingRun triggers a daily trading pass outside the schedule
func (s *Server) handleTradingRun(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.RunToday(); err != nil {
		s.log.Error().Err(err).Msg("Manual trading pass failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

type backtestRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// handleBacktest replays the daily pass across a historical date range
func (s *Server) handleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	from, err := time.Parse("2006-01-02", req.From)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid from date, expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse("2006-01-02", req.To)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid to date, expected YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		s.writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	report, err := s.driver.Backtest(from, to)
	if err != nil {
		s.log.Error().Err(err).Msg("Backtest failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// writeCashError maps ledger validation errors to client error codes
func (s *Server) writeCashError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ledger.ErrAmountNotPositive):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientCash):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Error().Err(err).Msg(fallback)
		s.writeError(w, http.StatusInternalServerError, fallback)
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
