/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts cross the wire as decimal strings ("6000.00"), never floats.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain model these map from
*/
package api

import (
	"time"

	"github.com/pennywise/budget-engine/backup"
	"github.com/pennywise/budget-engine/budget"
	"github.com/pennywise/budget-engine/ledger"
)

// =============================================================================
// BUCKETS
// =============================================================================

// BucketDTO represents a bucket in API responses.
type BucketDTO struct {
	ID            int64   `json:"id"`
	Name          string  `json:"name"`
	MonthlyAmount *string `json:"monthly_amount"`
	Balance       string  `json:"balance"`
	CreatedAt     string  `json:"created_at,omitempty"`
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

func toBucketDTO(b *ledger.Bucket) BucketDTO {
	dto := BucketDTO{
		ID:        b.ID,
		Name:      b.Name,
		Balance:   ledger.FormatAmount(b.Balance),
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
	if b.MonthlyAmount != nil {
		m := ledger.FormatAmount(*b.MonthlyAmount)
		dto.MonthlyAmount = &m
	}
	return dto
}

// SetTargetRequest updates a bucket's monthly allocation target.
// A null monthly_amount clears the target.
type SetTargetRequest struct {
	MonthlyAmount *string `json:"monthly_amount"`
}

// TransferRequest moves funds between buckets. Either amount or
// transfer_all must be provided.
type TransferRequest struct {
	FromBucketID int64   `json:"from_bucket_id"`
	ToBucketID   int64   `json:"to_bucket_id"`
	Amount       *string `json:"amount,omitempty"`
	TransferAll  bool    `json:"transfer_all,omitempty"`
}

// MovedResponse reports how much a transfer or reset actually moved.
type MovedResponse struct {
	Moved string `json:"moved"`
}

// =============================================================================
// DISTRIBUTIONS
// =============================================================================

// DistributeRequest allocates an income transaction across buckets.
type DistributeRequest struct {
	TransactionID int64 `json:"transaction_id"`
}

// DistributeResponse reports what a distribution did.
type DistributeResponse struct {
	EventID   string `json:"event_id"`
	Allocated string `json:"allocated"`
	Remainder string `json:"remainder"`
}

// DistributionDTO is a past distribution with its per-bucket log.
type DistributionDTO struct {
	ID            string     `json:"id"`
	TransactionID int64      `json:"transaction_id"`
	TotalAmount   string     `json:"total_amount"`
	Reverted      bool       `json:"reverted"`
	CreatedAt     string     `json:"created_at"`
	Logs          []EntryDTO `json:"logs"`
}

// EntryDTO is one audit entry of a distribution.
type EntryDTO struct {
	ID         string `json:"id"`
	BucketID   int64  `json:"bucket_id"`
	BucketName string `json:"bucket_name"`
	Amount     string `json:"amount"`
	CreatedAt  string `json:"created_at"`
}

func toDistributionDTO(d budget.Distribution) DistributionDTO {
	dto := DistributionDTO{
		ID:            d.Event.ID,
		TransactionID: d.Event.TransactionID,
		TotalAmount:   ledger.FormatAmount(d.Event.TotalAmount),
		Reverted:      d.Event.Reverted,
		CreatedAt:     d.Event.CreatedAt.Format(time.RFC3339),
		Logs:          make([]EntryDTO, len(d.Logs)),
	}
	for i, l := range d.Logs {
		dto.Logs[i] = EntryDTO{
			ID:         l.ID,
			BucketID:   l.BucketID,
			BucketName: l.BucketName,
			Amount:     ledger.FormatAmount(l.Amount),
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
	}
	return dto
}

// =============================================================================
// TRANSACTIONS & CATEGORIES
// =============================================================================

// TransactionDTO represents a stored transaction in API responses.
type TransactionDTO struct {
	ID           int64  `json:"id"`
	Amount       string `json:"amount"`
	MerchantName string `json:"merchant_name"`
	Category     string `json:"category"`
	Type         string `json:"transaction_type"`
	DateTime     string `json:"date_time"`
	Description  string `json:"description,omitempty"`
	BankName     string `json:"bank_name,omitempty"`
	Currency     string `json:"currency,omitempty"`
	IsDeleted    bool   `json:"is_deleted"`
}

func toTransactionDTO(t *ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           t.ID,
		Amount:       ledger.FormatAmount(t.Amount),
		MerchantName: t.MerchantName,
		Category:     t.Category,
		Type:         t.Type,
		DateTime:     t.DateTime,
		Description:  t.Description,
		BankName:     t.BankName,
		Currency:     t.Currency,
		IsDeleted:    t.IsDeleted,
	}
}

// CategoryDTO represents a category in API responses.
type CategoryDTO struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	IsSystem     bool   `json:"is_system"`
	IsIncome     bool   `json:"is_income"`
	DisplayOrder int64  `json:"display_order"`
	BucketID     *int64 `json:"bucket_id"`
}

// =============================================================================
// BACKUP & IMPORTS
// =============================================================================

// ImportResultDTO reports the outcome of a backup upload.
type ImportResultDTO struct {
	ImportID string         `json:"import_id"`
	Status   string         `json:"status"`
	Counts   map[string]int `json:"counts,omitempty"`
}

// ImportLogDTO is a past reconciliation run.
type ImportLogDTO struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	Status       string         `json:"status"`
	StartedAt    string         `json:"started_at"`
	CompletedAt  *string        `json:"completed_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Counts       map[string]int `json:"counts"`
}

func toImportLogDTO(s backup.ImportSummary) ImportLogDTO {
	dto := ImportLogDTO{
		ID:           s.Log.ID,
		Filename:     s.Log.Filename,
		Status:       s.Log.Status,
		StartedAt:    s.Log.StartedAt.Format(time.RFC3339),
		ErrorMessage: s.Log.ErrorMessage,
		Counts:       s.Counts,
	}
	if s.Log.CompletedAt != nil {
		c := s.Log.CompletedAt.Format(time.RFC3339)
		dto.CompletedAt = &c
	}
	return dto
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
