// Package api exposes the ingester over HTTP: batch upload, read-only ledger
// queries, a websocket feed of batch outcomes, health and metrics.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/ffl/batch-ingester/internal/batch"
	"github.com/ffl/batch-ingester/internal/metrics"
	"github.com/ffl/batch-ingester/internal/model"
	"github.com/ffl/batch-ingester/internal/store"
)

// MaxBatchBytes caps the size of an uploaded batch file.
const MaxBatchBytes = 64 << 20

var errUnknownCustomer = errors.New("customer not found")

// Server holds the HTTP handlers.
type Server struct {
	coord  *batch.Coordinator
	ledger store.Ledger
	hub    *Hub

	// mu serializes batch runs: one transaction scope at a time per process.
	mu sync.Mutex
}

// NewServer creates the HTTP surface. hub may be nil to disable the
// websocket feed.
func NewServer(coord *batch.Coordinator, ledger store.Ledger, hub *Hub) *Server {
	return &Server{
		coord:  coord,
		ledger: ledger,
		hub:    hub,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "batch-ingester"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}

		r.Post("/batches", s.SubmitBatch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Get("/customers/{customerID}/cash", s.GetCash)
			r.Get("/customers/{customerID}/holdings/{isin}", s.GetHolding)
		})
	})
	return r
}

// SubmitBatch handles POST /api/v1/batches. The body is the batch file.
func (s *Server) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, MaxBatchBytes)

	s.mu.Lock()
	out := s.coord.Run(r.Context(), body)
	s.mu.Unlock()

	status := http.StatusOK
	if !out.Committed() {
		status = http.StatusUnprocessableEntity
		if out.Kind() == "StoreFailure" || out.Kind() == "CommitFailed" {
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, out.Event())
}

type cashResponse struct {
	CustomerID string `json:"customer_id"`
	Cash       string `json:"cash"`
}

// GetCash handles GET /api/v1/customers/{customerID}/cash.
func (s *Server) GetCash(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	ctx := r.Context()

	var cash decimal.Decimal
	err := store.View(ctx, s.ledger, func(tx store.Tx) error {
		if err := requireCustomer(r, tx, customerID); err != nil {
			return err
		}
		var err error
		cash, err = tx.CashBalance(ctx, customerID)
		return err
	})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cashResponse{CustomerID: customerID, Cash: model.FormatDecimal(cash)})
}

type holdingResponse struct {
	CustomerID string `json:"customer_id"`
	ISIN       string `json:"isin"`
	Units      string `json:"units"`
}

// GetHolding handles GET /api/v1/customers/{customerID}/holdings/{isin}.
func (s *Server) GetHolding(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	isin := chi.URLParam(r, "isin")
	ctx := r.Context()

	var units decimal.Decimal
	err := store.View(ctx, s.ledger, func(tx store.Tx) error {
		if err := requireCustomer(r, tx, customerID); err != nil {
			return err
		}
		var err error
		units, err = tx.UnitHolding(ctx, customerID, isin)
		return err
	})
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, holdingResponse{CustomerID: customerID, ISIN: isin, Units: model.FormatDecimal(units)})
}

func requireCustomer(r *http.Request, tx store.Tx, customerID string) error {
	ok, err := tx.CustomerExists(r.Context(), customerID)
	if err != nil {
		return err
	}
	if !ok {
		return errUnknownCustomer
	}
	return nil
}

func writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, errUnknownCustomer) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	slog.Error("ledger query failed", "err", err)
	writeError(w, "ledger query failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
