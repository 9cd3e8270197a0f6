/*
Package backup implements the backup reconciliation engine: it diffs a device
snapshot against the store, applies adds/updates/soft-deletes idempotently,
and keeps bucket balances synchronized with the net effect of every
transaction it has ever seen.

KEY CONCEPTS:
  - Snapshot: the parsed backup document. Every record field is a pointer;
    nil means the source omitted the field and it must not overwrite stored
    data. Boolean flags arrive as 0/1 integers from the device.
  - Natural key: the field set that matches an incoming record to a stored
    row. Records missing any key field are skipped silently.
  - Import log: created and committed before any merge work, transitioned to
    COMPLETED or FAILED afterwards, never deleted.

SEE ALSO:
  - merge.go: the generic natural-key merge driver
  - transactions.go: the balance-affecting transaction merge
  - importer.go: run lifecycle and group ordering
*/
package backup

import "encoding/json"

// Snapshot is the backup envelope uploaded by the device. Metadata and
// preferences are carried but never interpreted by reconciliation.
type Snapshot struct {
	Format      string           `json:"_format,omitempty"`
	Warning     string           `json:"_warning,omitempty"`
	Created     string           `json:"_created,omitempty"`
	Metadata    json.RawMessage  `json:"metadata,omitempty"`
	Database    *DatabaseSection `json:"database,omitempty"`
	Preferences json.RawMessage  `json:"preferences,omitempty"`
}

// DatabaseSection holds the entity collections, one per store table.
type DatabaseSection struct {
	Transactions         []TransactionRecord         `json:"transactions"`
	Categories           []CategoryRecord            `json:"categories"`
	Cards                []CardRecord                `json:"cards"`
	AccountBalances      []AccountBalanceRecord      `json:"account_balances"`
	Subscriptions        []SubscriptionRecord        `json:"subscriptions"`
	MerchantMappings     []MerchantMappingRecord     `json:"merchant_mappings"`
	UnrecognizedMessages []UnrecognizedMessageRecord `json:"unrecognized_sms"`
	ChatMessages         []ChatMessageRecord         `json:"chat_messages"`
	TransactionRules     []TransactionRuleRecord     `json:"transaction_rules"`
	RuleApplications     []RuleApplicationRecord     `json:"rule_applications"`
	ExchangeRates        []ExchangeRateRecord        `json:"exchange_rates"`
}

// TransactionRecord's natural key is TransactionHash.
type TransactionRecord struct {
	ID              *int64  `json:"id"`
	Amount          *string `json:"amount"`
	MerchantName    *string `json:"merchant_name"`
	Category        *string `json:"category"`
	TransactionType *string `json:"transaction_type"`
	DateTime        *string `json:"date_time"`
	Description     *string `json:"description"`
	SmsBody         *string `json:"sms_body"`
	BankName        *string `json:"bank_name"`
	SmsSender       *string `json:"sms_sender"`
	AccountNumber   *string `json:"account_number"`
	BalanceAfter    *string `json:"balance_after"`
	TransactionHash *string `json:"transaction_hash"`
	IsRecurring     *int64  `json:"is_recurring"`
	IsDeleted       *int64  `json:"is_deleted"`
	CreatedAt       *string `json:"created_at"`
	UpdatedAt       *string `json:"updated_at"`
	Currency        *string `json:"currency"`
	FromAccount     *string `json:"from_account"`
	ToAccount       *string `json:"to_account"`
}

// CategoryRecord's natural key is Name.
type CategoryRecord struct {
	ID           *int64  `json:"id"`
	Name         *string `json:"name"`
	Color        *string `json:"color"`
	IsSystem     *int64  `json:"is_system"`
	IsIncome     *int64  `json:"is_income"`
	DisplayOrder *int64  `json:"display_order"`
	CreatedAt    *string `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
}

// CardRecord's natural key is ID.
type CardRecord struct {
	ID                *int64  `json:"id"`
	CardLast4         *string `json:"card_last4"`
	CardType          *string `json:"card_type"`
	BankName          *string `json:"bank_name"`
	AccountLast4      *string `json:"account_last4"`
	Nickname          *string `json:"nickname"`
	IsActive          *int64  `json:"is_active"`
	LastBalance       *string `json:"last_balance"`
	LastBalanceSource *string `json:"last_balance_source"`
	LastBalanceDate   *string `json:"last_balance_date"`
	CreatedAt         *string `json:"created_at"`
	UpdatedAt         *string `json:"updated_at"`
	Currency          *string `json:"currency"`
}

// AccountBalanceRecord's natural key is (BankName, AccountLast4, Timestamp).
type AccountBalanceRecord struct {
	ID            *int64  `json:"id"`
	BankName      *string `json:"bank_name"`
	AccountLast4  *string `json:"account_last4"`
	Balance       *string `json:"balance"`
	Timestamp     *string `json:"timestamp"`
	TransactionID *int64  `json:"transaction_id"`
	CreditLimit   *string `json:"credit_limit"`
	IsCreditCard  *int64  `json:"is_credit_card"`
	SmsSource     *string `json:"sms_source"`
	SourceType    *string `json:"source_type"`
	CreatedAt     *string `json:"created_at"`
	Currency      *string `json:"currency"`
}

// SubscriptionRecord's natural key is ID.
type SubscriptionRecord struct {
	ID              *int64  `json:"id"`
	MerchantName    *string `json:"merchant_name"`
	Amount          *string `json:"amount"`
	NextPaymentDate *string `json:"next_payment_date"`
	State           *string `json:"state"`
	BankName        *string `json:"bank_name"`
	Umn             *string `json:"umn"`
	Category        *string `json:"category"`
	SmsBody         *string `json:"sms_body"`
	CreatedAt       *string `json:"created_at"`
	UpdatedAt       *string `json:"updated_at"`
	Currency        *string `json:"currency"`
}

// MerchantMappingRecord's natural key is MerchantName.
type MerchantMappingRecord struct {
	MerchantName *string `json:"merchant_name"`
	Category     *string `json:"category"`
	CreatedAt    *string `json:"created_at"`
	UpdatedAt    *string `json:"updated_at"`
}

// UnrecognizedMessageRecord's natural key is (Sender, SmsBody).
type UnrecognizedMessageRecord struct {
	ID         *int64  `json:"id"`
	Sender     *string `json:"sender"`
	SmsBody    *string `json:"sms_body"`
	ReceivedAt *string `json:"received_at"`
	Reported   *int64  `json:"reported"`
	IsDeleted  *int64  `json:"is_deleted"`
	CreatedAt  *string `json:"created_at"`
}

// ChatMessageRecord's natural key is ID.
type ChatMessageRecord struct {
	ID             *string `json:"id"`
	Message        *string `json:"message"`
	IsUser         *int64  `json:"isUser"`
	Timestamp      *int64  `json:"timestamp"`
	IsSystemPrompt *int64  `json:"isSystemPrompt"`
}

// TransactionRuleRecord's natural key is ID.
type TransactionRuleRecord struct {
	ID               *string `json:"id"`
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Priority         *int64  `json:"priority"`
	Conditions       *string `json:"conditions"`
	Actions          *string `json:"actions"`
	IsActive         *int64  `json:"is_active"`
	IsSystemTemplate *int64  `json:"is_system_template"`
	CreatedAt        *string `json:"created_at"`
	UpdatedAt        *string `json:"updated_at"`
}

// RuleApplicationRecord's natural key is ID.
type RuleApplicationRecord struct {
	ID             *string `json:"id"`
	RuleID         *string `json:"rule_id"`
	RuleName       *string `json:"rule_name"`
	TransactionID  *string `json:"transaction_id"`
	FieldsModified *string `json:"fields_modified"`
	AppliedAt      *string `json:"applied_at"`
}

// ExchangeRateRecord's natural key is (FromCurrency, ToCurrency).
type ExchangeRateRecord struct {
	ID            *int64  `json:"id"`
	FromCurrency  *string `json:"from_currency"`
	ToCurrency    *string `json:"to_currency"`
	Rate          *string `json:"rate"`
	Provider      *string `json:"provider"`
	UpdatedAt     *string `json:"updated_at"`
	UpdatedAtUnix *int64  `json:"updated_at_unix"`
	ExpiresAt     *string `json:"expires_at"`
	ExpiresAtUnix *int64  `json:"expires_at_unix"`
}
