/*
Package ledger defines the shared data model and the balance accounting
primitive for the PennyWise budget engine.

PURPOSE:
  Both engines (budget operations and backup reconciliation) mutate bucket
  balances. This package holds the entities they share, the signed-delta
  arithmetic, the error taxonomy, and the store contract that guarantees
  every balance change is paired with a queryable audit row.

KEY CONCEPTS IN THIS FILE (types.go):
  - Bucket: named pool with a running balance and an optional monthly target
  - Category: transaction classification, owned by exactly one bucket
  - Transaction: device-sourced row, deduplicated by content hash
  - BucketEntry: the audit row written alongside every balance delta
  - DistributionEvent: revert unit for income distributions
  - ImportLog / ImportRowLog: reconciliation audit trail

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Auditability: no delta without a BucketEntry (see store.go)
  3. Reversibility: reverts subtract logged amounts, never recompute

SEE ALSO:
  - money.go: EffectDelta / Reverse pure functions
  - errors.go: error taxonomy
  - store.go: Store/Tx interfaces implemented by store/sqlite
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BUCKETS & CATEGORIES
// =============================================================================

// OthersBucketName is the well-known singleton bucket that absorbs the
// distribution remainder. It is lazily created on first distribution.
const OthersBucketName = "Others"

// Bucket is the budgeting unit of account. Balance may go negative.
type Bucket struct {
	ID            int64
	Name          string
	MonthlyAmount *decimal.Decimal // nil = no monthly target
	Balance       decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Monthly returns the monthly target, treating nil as zero.
func (b *Bucket) Monthly() decimal.Decimal {
	if b.MonthlyAmount == nil {
		return decimal.Zero
	}
	return *b.MonthlyAmount
}

// Category classifies transactions. Every category is owned by exactly one
// bucket; BucketID is nil only transiently, between category creation and
// bucket linking during a reconciliation pass.
type Category struct {
	ID           int64
	Name         string
	Color        string
	IsSystem     bool
	IsIncome     bool
	DisplayOrder int64
	BucketID     *int64
	CreatedAt    string
	UpdatedAt    string
}

// Linked reports whether the category has an owning bucket.
func (c *Category) Linked() bool { return c.BucketID != nil }

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Transaction types that affect bucket balances. Anything else (TRANSFER,
// INVESTMENT, ...) is stored but has no balance effect.
const (
	TxTypeIncome  = "INCOME"
	TxTypeExpense = "EXPENSE"
)

// IncomeCategoryName is the exact category a transaction must carry to be
// eligible for distribution. Case-sensitive.
const IncomeCategoryName = "Income"

// Transaction mirrors the device schema. Timestamps arrive as opaque strings
// from the source and are stored verbatim; the server never interprets them.
type Transaction struct {
	ID            int64
	Amount        decimal.Decimal // unsigned as stored; sign comes from Type
	MerchantName  string
	Category      string // free-text match against Category.Name
	Type          string
	DateTime      string
	Description   string
	SmsBody       string
	BankName      string
	SmsSender     string
	AccountNumber string
	BalanceAfter  string
	Hash          string // content hash, the natural dedup key
	IsRecurring   bool
	IsDeleted     bool
	CreatedAt     string
	UpdatedAt     string
	Currency      string
	FromAccount   string
	ToAccount     string
}

// =============================================================================
// AUDIT ENTRIES
// =============================================================================

// EntryKind tags why a bucket balance changed.
type EntryKind string

const (
	EntryDistribute  EntryKind = "DISTRIBUTE"  // income allocation, owned by an event
	EntryTransfer    EntryKind = "TRANSFER"    // bucket-to-bucket move
	EntryReset       EntryKind = "RESET"       // negative bucket zeroed from Others
	EntryRevert      EntryKind = "REVERT"      // exact undo of an event's entries
	EntryTransaction EntryKind = "TRANSACTION" // reconciliation balance effect
)

// BucketEntry is the audit row paired with every balance delta. Entries are
// append-only; the DISTRIBUTE entries of an event are its distribution log.
type BucketEntry struct {
	ID         string
	Kind       EntryKind
	EventID    string // set for DISTRIBUTE and REVERT
	BucketID   int64
	BucketName string // joined on read, not stored
	Amount     decimal.Decimal
	Reference  string // transaction id, peer bucket, ...
	CreatedAt  time.Time
}

// DistributionEvent is the revert unit for a distribution. Reverted is
// monotonic: false to true, once.
type DistributionEvent struct {
	ID            string
	TransactionID int64
	TotalAmount   decimal.Decimal
	Reverted      bool
	CreatedAt     time.Time
}

// =============================================================================
// IMPORT AUDIT
// =============================================================================

// Import statuses. STARTED transitions to exactly one of the terminal states.
const (
	ImportStarted   = "STARTED"
	ImportCompleted = "COMPLETED"
	ImportFailed    = "FAILED"
)

// Row actions recorded per processed snapshot record.
const (
	RowAdded   = "ADDED"
	RowUpdated = "UPDATED"
	RowSkipped = "SKIPPED"
	RowDeleted = "DELETED"
)

// EntityType identifies which collection a row log refers to.
type EntityType string

const (
	EntityCategory            EntityType = "categories"
	EntityCard                EntityType = "cards"
	EntityTransaction         EntityType = "transactions"
	EntityAccountBalance      EntityType = "account_balances"
	EntitySubscription        EntityType = "subscriptions"
	EntityMerchantMapping     EntityType = "merchant_mappings"
	EntityUnrecognizedMessage EntityType = "unrecognized_messages"
	EntityChatMessage         EntityType = "chat_messages"
	EntityTransactionRule     EntityType = "transaction_rules"
	EntityRuleApplication     EntityType = "rule_applications"
	EntityExchangeRate        EntityType = "exchange_rates"
)

// ImportLog is created and committed before any merge work begins, so its id
// survives a failed run. Never deleted, only transitioned.
type ImportLog struct {
	ID           string
	Filename     string
	Status       string
	StartedAt    time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// ImportRowLog records the outcome for one processed snapshot record.
type ImportRowLog struct {
	ID       string
	ImportID string
	Action   string
	Entity   EntityType
	EntityID string
}

// =============================================================================
// AUXILIARY COLLECTIONS (merged generically, no balance effect)
// =============================================================================

type Card struct {
	ID                int64
	CardLast4         string
	CardType          string
	BankName          string
	AccountLast4      string
	Nickname          string
	IsActive          bool
	LastBalance       string
	LastBalanceSource string
	LastBalanceDate   string
	CreatedAt         string
	UpdatedAt         string
	Currency          string
}

type AccountBalance struct {
	ID            int64
	BankName      string
	AccountLast4  string
	Balance       string
	Timestamp     string
	TransactionID int64
	CreditLimit   string
	IsCreditCard  bool
	SmsSource     string
	SourceType    string
	CreatedAt     string
	Currency      string
}

type Subscription struct {
	ID              int64
	MerchantName    string
	Amount          string
	NextPaymentDate string
	State           string
	BankName        string
	Umn             string
	Category        string
	SmsBody         string
	CreatedAt       string
	UpdatedAt       string
	Currency        string
}

type MerchantMapping struct {
	MerchantName string
	Category     string
	CreatedAt    string
	UpdatedAt    string
}

type UnrecognizedMessage struct {
	ID         int64
	Sender     string
	Body       string
	ReceivedAt string
	Reported   bool
	IsDeleted  bool
	CreatedAt  string
}

type ChatMessage struct {
	ID             string
	Message        string
	IsUser         bool
	Timestamp      int64
	IsSystemPrompt bool
}

type TransactionRule struct {
	ID               string
	Name             string
	Description      string
	Priority         int64
	Conditions       string // JSON blob from the device
	Actions          string // JSON blob from the device
	IsActive         bool
	IsSystemTemplate bool
	CreatedAt        string
	UpdatedAt        string
}

type RuleApplication struct {
	ID             string
	RuleID         string
	RuleName       string
	TransactionID  string
	FieldsModified string
	AppliedAt      string
}

type ExchangeRate struct {
	ID            int64
	FromCurrency  string
	ToCurrency    string
	Rate          string
	Provider      string
	UpdatedAt     string
	UpdatedAtUnix int64
	ExpiresAt     string
	ExpiresAtUnix int64
}
