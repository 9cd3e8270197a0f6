/*
handlers.go - HTTP API handlers for the budget engine

PURPOSE:
  Exposes the budget ledger and backup reconciliation engines via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Buckets:
    GET    /api/buckets                    List buckets with balances
    GET    /api/buckets/{id}               Get one bucket
    PUT    /api/buckets/{id}/target        Set/clear monthly target
    POST   /api/buckets/{id}/reset         Zero a negative bucket from Others
    POST   /api/buckets/transfer           Move funds between buckets

  Distributions:
    POST   /api/distributions              Distribute an income transaction
    GET    /api/distributions              List past distributions with logs
    POST   /api/distributions/{id}/revert  Undo a distribution, once

  Transactions:
    GET    /api/transactions               Recent transactions
    GET    /api/transactions/income        Distributable income transactions

  Backup:
    POST   /api/backup                     Upload and reconcile a snapshot
    GET    /api/imports                    Past reconciliation runs

ERROR HANDLING:
  Errors are returned as JSON with status derived from the error taxonomy:
  - 400: bad request body, insufficient funds
  - 404: referenced entity absent
  - 409: operation not permitted in current state
  - 500: internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pennywise/budget-engine/backup"
	"github.com/pennywise/budget-engine/budget"
	"github.com/pennywise/budget-engine/ledger"
)

const defaultListLimit = 50

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ledger.Store
	Budget   *budget.Engine
	Importer *backup.Importer
	Log      zerolog.Logger
}

// NewHandler creates a handler wired to both engines.
func NewHandler(store ledger.Store, engine *budget.Engine, importer *backup.Importer, log zerolog.Logger) *Handler {
	return &Handler{Store: store, Budget: engine, Importer: importer, Log: log}
}

// =============================================================================
// BUCKET HANDLERS
// =============================================================================

// ListBuckets returns all buckets with balances.
func (h *Handler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	var buckets []ledger.Bucket
	err := h.Store.WithTx(r.Context(), func(tx ledger.Tx) error {
		var err error
		buckets, err = tx.ListBuckets(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, ledger.AsInternal(err))
		return
	}

	dtos := make([]BucketDTO, len(buckets))
	for i := range buckets {
		dtos[i] = toBucketDTO(&buckets[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBucket returns a single bucket.
func (h *Handler) GetBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var b *ledger.Bucket
	err := h.Store.WithTx(r.Context(), func(tx ledger.Tx) error {
		var err error
		b, err = tx.GetBucket(r.Context(), id)
		return err
	})
	if err != nil {
		writeDomainError(w, ledger.AsInternal(err))
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "Bucket not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBucketDTO(b))
}

// SetBucketTarget sets or clears a bucket's monthly allocation target.
func (h *Handler) SetBucketTarget(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req SetTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var monthly *decimal.Decimal
	if req.MonthlyAmount != nil {
		m, err := decimal.NewFromString(*req.MonthlyAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid monthly_amount", err)
			return
		}
		monthly = &m
	}

	b, err := h.Budget.SetBucketTarget(r.Context(), id, monthly)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketDTO(b))
}

// Transfer moves funds between buckets.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		a, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		amount = &a
	}

	moved, err := h.Budget.Transfer(r.Context(), req.FromBucketID, req.ToBucketID, amount, req.TransferAll)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MovedResponse{Moved: ledger.FormatAmount(moved)})
}

// ResetBucket zeroes a negative bucket from Others.
func (h *Handler) ResetBucket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	moved, err := h.Budget.Reset(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MovedResponse{Moved: ledger.FormatAmount(moved)})
}

// =============================================================================
// DISTRIBUTION HANDLERS
// =============================================================================

// Distribute allocates an income transaction across buckets.
func (h *Handler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Budget.Distribute(r.Context(), req.TransactionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DistributeResponse{
		EventID:   res.EventID,
		Allocated: ledger.FormatAmount(res.Allocated),
		Remainder: ledger.FormatAmount(res.Remainder),
	})
}

// ListDistributions returns recent distributions with their logs.
func (h *Handler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	dists, err := h.Budget.ListDistributions(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]DistributionDTO, len(dists))
	for i, d := range dists {
		dtos[i] = toDistributionDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RevertDistribution undoes a distribution's logged deltas.
func (h *Handler) RevertDistribution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Budget.Revert(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reverted"})
}

// =============================================================================
// TRANSACTION HANDLERS
// =============================================================================

// ListTransactions returns recent transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, func(tx ledger.Tx) ([]ledger.Transaction, error) {
		return tx.ListTransactions(r.Context(), queryLimit(r))
	})
}

// ListIncomeTransactions returns non-deleted income transactions, the
// candidates for distribution.
func (h *Handler) ListIncomeTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, func(tx ledger.Tx) ([]ledger.Transaction, error) {
		return tx.ListIncomeTransactions(r.Context(), queryLimit(r))
	})
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request, load func(tx ledger.Tx) ([]ledger.Transaction, error)) {
	var txns []ledger.Transaction
	err := h.Store.WithTx(r.Context(), func(tx ledger.Tx) error {
		var err error
		txns, err = load(tx)
		return err
	})
	if err != nil {
		writeDomainError(w, ledger.AsInternal(err))
		return
	}

	dtos := make([]TransactionDTO, len(txns))
	for i := range txns {
		dtos[i] = toTransactionDTO(&txns[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListCategories returns all categories with their bucket links.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	var cats []ledger.Category
	err := h.Store.WithTx(r.Context(), func(tx ledger.Tx) error {
		var err error
		cats, err = tx.ListCategories(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, ledger.AsInternal(err))
		return
	}

	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = CategoryDTO{
			ID:           c.ID,
			Name:         c.Name,
			Color:        c.Color,
			IsSystem:     c.IsSystem,
			IsIncome:     c.IsIncome,
			DisplayOrder: c.DisplayOrder,
			BucketID:     c.BucketID,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BACKUP HANDLERS
// =============================================================================

// UploadBackup reconciles a device snapshot against the store.
func (h *Handler) UploadBackup(w http.ResponseWriter, r *http.Request) {
	var snap backup.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid snapshot body", err)
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.json"
	}

	res, err := h.Importer.ProcessBackup(r.Context(), filename, &snap)
	if err != nil {
		// The import id survives the failed run; surface it alongside the error.
		if res != nil {
			writeJSON(w, http.StatusInternalServerError, ImportResultDTO{
				ImportID: res.ImportID,
				Status:   res.Status,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResultDTO{
		ImportID: res.ImportID,
		Status:   res.Status,
		Counts:   res.Counts,
	})
}

// ListImports returns past reconciliation runs.
func (h *Handler) ListImports(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Importer.ListImports(r.Context(), queryLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ImportLogDTO, len(summaries))
	for i, s := range summaries {
		dtos[i] = toImportLogDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

func queryLimit(r *http.Request) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return defaultListLimit
}

// writeDomainError maps the error taxonomy to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrInvalidState):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, ledger.ErrBadRequest), errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusBadRequest, "Bad request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
