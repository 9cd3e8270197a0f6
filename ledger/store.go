/*
store.go - Persistence contract for both engines

PURPOSE:
  Defines the unit-of-work interface the engines run against. The store is an
  external collaborator assumed to provide atomic, durable multi-row
  transactions; everything here layers the consistency protocol on top.

THE BALANCE ACCOUNTING PRIMITIVE:
  ApplyDelta is the only way a bucket balance changes. It mutates
  balance += entry.Amount AND persists the entry row in the same atomic
  unit, so every delta is queryable and exactly reversible later.

UNIT OF WORK:
  WithTx runs fn inside one store transaction. Returning an error rolls
  everything back; returning nil commits. Each ledger operation and each
  reconciliation run is exactly one such unit. No locking, retries, or
  version checks happen above the store's own isolation.

SEE ALSO:
  - store/sqlite: the SQLite implementation
  - budget/engine.go, backup/importer.go: the two consumers
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store opens atomic units of work.
type Store interface {
	// WithTx executes fn within one store transaction. fn returning an
	// error rolls back every mutation made through tx.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the full persistence surface available inside a unit of work.
// Get* methods return (nil, nil) when the row does not exist.
type Tx interface {
	BucketTx
	CategoryTx
	TransactionTx
	DistributionTx
	ImportTx
	AuxiliaryTx
}

// BucketTx covers buckets and the accounting primitive.
type BucketTx interface {
	GetBucket(ctx context.Context, id int64) (*Bucket, error)
	GetBucketByName(ctx context.Context, name string) (*Bucket, error)
	ListBuckets(ctx context.Context) ([]Bucket, error)
	CreateBucket(ctx context.Context, b *Bucket) error
	SetBucketMonthly(ctx context.Context, id int64, monthly *decimal.Decimal) error

	// ApplyDelta adds entry.Amount to the bucket's balance and records the
	// entry, atomically with the surrounding unit of work. The entry's ID
	// and CreatedAt are assigned by the store.
	ApplyDelta(ctx context.Context, entry *BucketEntry) error
}

type CategoryTx interface {
	GetCategory(ctx context.Context, id int64) (*Category, error)
	GetCategoryByName(ctx context.Context, name string) (*Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
}

type TransactionTx interface {
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	ListTransactions(ctx context.Context, limit int) ([]Transaction, error)
	ListIncomeTransactions(ctx context.Context, limit int) ([]Transaction, error)
	// ListActiveTransactions returns every non-deleted transaction; the
	// soft-delete pass diffs these against the incoming snapshot keys.
	ListActiveTransactions(ctx context.Context) ([]Transaction, error)
	CreateTransaction(ctx context.Context, t *Transaction) error
	UpdateTransaction(ctx context.Context, t *Transaction) error
}

type DistributionTx interface {
	// CreateDistributionEvent assigns ev.ID and ev.CreatedAt.
	CreateDistributionEvent(ctx context.Context, ev *DistributionEvent) error
	GetDistributionEvent(ctx context.Context, id string) (*DistributionEvent, error)
	ListDistributionEvents(ctx context.Context, limit int) ([]DistributionEvent, error)
	// DistributionLogs returns the event's DISTRIBUTE entries with bucket
	// names resolved, in insertion order.
	DistributionLogs(ctx context.Context, eventID string) ([]BucketEntry, error)
	MarkEventReverted(ctx context.Context, id string) error
}

type ImportTx interface {
	// CreateImportLog assigns log.ID and log.StartedAt.
	CreateImportLog(ctx context.Context, log *ImportLog) error
	SetImportStatus(ctx context.Context, id, status, errMsg string, completedAt time.Time) error
	AddRowLog(ctx context.Context, row *ImportRowLog) error
	ListImportLogs(ctx context.Context, limit int) ([]ImportLog, error)
	RowLogCounts(ctx context.Context, importID string) (map[string]int, error)
}

// AuxiliaryTx covers the independent snapshot collections. Each entity gets a
// lookup by its natural key plus insert/update; the reconciliation engine
// owns the diff logic.
type AuxiliaryTx interface {
	GetCard(ctx context.Context, id int64) (*Card, error)
	InsertCard(ctx context.Context, c *Card) error
	UpdateCard(ctx context.Context, c *Card) error

	GetAccountBalance(ctx context.Context, bankName, accountLast4, timestamp string) (*AccountBalance, error)
	InsertAccountBalance(ctx context.Context, a *AccountBalance) error
	UpdateAccountBalance(ctx context.Context, a *AccountBalance) error

	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	InsertSubscription(ctx context.Context, s *Subscription) error
	UpdateSubscription(ctx context.Context, s *Subscription) error

	GetMerchantMapping(ctx context.Context, merchantName string) (*MerchantMapping, error)
	InsertMerchantMapping(ctx context.Context, m *MerchantMapping) error
	UpdateMerchantMapping(ctx context.Context, m *MerchantMapping) error

	GetUnrecognizedMessage(ctx context.Context, sender, body string) (*UnrecognizedMessage, error)
	InsertUnrecognizedMessage(ctx context.Context, u *UnrecognizedMessage) error
	UpdateUnrecognizedMessage(ctx context.Context, u *UnrecognizedMessage) error

	GetChatMessage(ctx context.Context, id string) (*ChatMessage, error)
	InsertChatMessage(ctx context.Context, m *ChatMessage) error
	UpdateChatMessage(ctx context.Context, m *ChatMessage) error

	GetTransactionRule(ctx context.Context, id string) (*TransactionRule, error)
	InsertTransactionRule(ctx context.Context, r *TransactionRule) error
	UpdateTransactionRule(ctx context.Context, r *TransactionRule) error

	GetRuleApplication(ctx context.Context, id string) (*RuleApplication, error)
	InsertRuleApplication(ctx context.Context, r *RuleApplication) error
	UpdateRuleApplication(ctx context.Context, r *RuleApplication) error

	GetExchangeRate(ctx context.Context, fromCurrency, toCurrency string) (*ExchangeRate, error)
	InsertExchangeRate(ctx context.Context, e *ExchangeRate) error
	UpdateExchangeRate(ctx context.Context, e *ExchangeRate) error
}
