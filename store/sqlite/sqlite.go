/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements the unit-of-work contract both engines run against. In
  production the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  buckets:             named pools with running balances
  bucket_entries:      append-only audit row per balance delta
  distribution_events: revert units for income distributions
  transactions:        device-sourced rows, deduplicated by hash
  import_logs/rows:    reconciliation audit trail
  + one table per auxiliary snapshot collection

MONEY:
  Balances and amounts are stored as decimal strings (TEXT), never REAL.
  Balance arithmetic happens in Go via shopspring/decimal; ApplyDelta
  rewrites the balance and inserts the audit entry in the same SQL
  transaction.

CONCURRENCY:
  Uses sync.Mutex around units of work and caps the pool at one connection.
  SQLite allows one writer at a time; serializing here avoids SQLITE_BUSY
  churn, and the single connection keeps ":memory:" databases from splitting
  per connection. WAL mode keeps readers cheap.

USAGE:
  store, err := sqlite.New("./data/pennywise.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - budget/engine.go, backup/importer.go: the two consumers
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pennywise/budget-engine/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection for the whole pool: SQLite allows one writer anyway,
	// and with ":memory:" every additional connection would be a separate
	// empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within one SQL transaction. fn returning an error
// rolls back every mutation made through tx.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// tx implements ledger.Tx over one *sql.Tx.
type tx struct {
	q *sql.Tx
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Buckets (balances as decimal strings)
	CREATE TABLE IF NOT EXISTS buckets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		monthly_amount TEXT,
		balance TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Bucket entries (append-only audit, one row per balance delta)
	CREATE TABLE IF NOT EXISTS bucket_entries (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		event_id TEXT,
		bucket_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		reference TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bucket_entries_event
		ON bucket_entries(event_id) WHERE event_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_bucket_entries_bucket
		ON bucket_entries(bucket_id);

	-- Distribution events (revert units)
	CREATE TABLE IF NOT EXISTS distribution_events (
		id TEXT PRIMARY KEY,
		transaction_id INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		reverted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- Categories (1:1 with buckets via bucket_id)
	CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		color TEXT NOT NULL DEFAULT '',
		is_system INTEGER NOT NULL DEFAULT 0,
		is_income INTEGER NOT NULL DEFAULT 0,
		display_order INTEGER NOT NULL DEFAULT 0,
		bucket_id INTEGER,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	);

	-- Transactions (device rows; source timestamps stored verbatim)
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		amount TEXT NOT NULL DEFAULT '0',
		merchant_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		transaction_type TEXT NOT NULL DEFAULT '',
		date_time TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		sms_body TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		sms_sender TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		balance_after TEXT NOT NULL DEFAULT '',
		transaction_hash TEXT NOT NULL UNIQUE,
		is_recurring INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		from_account TEXT NOT NULL DEFAULT '',
		to_account TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_active
		ON transactions(is_deleted);
	CREATE INDEX IF NOT EXISTS idx_transactions_type
		ON transactions(transaction_type);

	-- Import audit trail
	CREATE TABLE IF NOT EXISTS import_logs (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS import_row_logs (
		id TEXT PRIMARY KEY,
		import_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_import_row_logs_import
		ON import_row_logs(import_id);

	-- Auxiliary collections (merged by natural key, no balance effect)
	CREATE TABLE IF NOT EXISTS cards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		card_last4 TEXT NOT NULL DEFAULT '',
		card_type TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		account_last4 TEXT NOT NULL DEFAULT '',
		nickname TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 0,
		last_balance TEXT NOT NULL DEFAULT '',
		last_balance_source TEXT NOT NULL DEFAULT '',
		last_balance_date TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS account_balances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		bank_name TEXT NOT NULL DEFAULT '',
		account_last4 TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT '',
		transaction_id INTEGER NOT NULL DEFAULT 0,
		credit_limit TEXT NOT NULL DEFAULT '',
		is_credit_card INTEGER NOT NULL DEFAULT 0,
		sms_source TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT '',
		UNIQUE(bank_name, account_last4, timestamp)
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		merchant_name TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL DEFAULT '',
		next_payment_date TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		bank_name TEXT NOT NULL DEFAULT '',
		umn TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		sms_body TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		currency TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS merchant_mappings (
		merchant_name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS unrecognized_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sender TEXT NOT NULL DEFAULT '',
		sms_body TEXT NOT NULL DEFAULT '',
		received_at TEXT NOT NULL DEFAULT '',
		reported INTEGER NOT NULL DEFAULT 0,
		is_deleted INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		UNIQUE(sender, sms_body)
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		message TEXT NOT NULL DEFAULT '',
		is_user INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL DEFAULT 0,
		is_system_prompt INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS transaction_rules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		conditions TEXT NOT NULL DEFAULT '',
		actions TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 0,
		is_system_template INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS rule_applications (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL DEFAULT '',
		rule_name TEXT NOT NULL DEFAULT '',
		transaction_id TEXT NOT NULL DEFAULT '',
		fields_modified TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS exchange_rates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_currency TEXT NOT NULL DEFAULT '',
		to_currency TEXT NOT NULL DEFAULT '',
		rate TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL DEFAULT '',
		updated_at_unix INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT NOT NULL DEFAULT '',
		expires_at_unix INTEGER NOT NULL DEFAULT 0,
		UNIQUE(from_currency, to_currency)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseRFC3339(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// nullID maps id 0 to NULL so SQLite assigns the next rowid; device-supplied
// ids are inserted as-is.
func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullDecimalPtr(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func scanDecimal(s string) decimal.Decimal {
	return ledger.MustParseDecimal(s)
}
