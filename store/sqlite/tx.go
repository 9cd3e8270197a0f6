/*
tx.go - Core ledger.Tx implementation

Buckets, categories, transactions, distribution events, and the import
audit trail. Auxiliary collections live in aux.go.
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pennywise/budget-engine/ledger"
)

// =============================================================================
// BUCKETS
// =============================================================================

const bucketColumns = "id, name, monthly_amount, balance, created_at, updated_at"

func (t *tx) GetBucket(ctx context.Context, id int64) (*ledger.Bucket, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+bucketColumns+" FROM buckets WHERE id = ?", id)
	return scanBucket(row)
}

func (t *tx) GetBucketByName(ctx context.Context, name string) (*ledger.Bucket, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+bucketColumns+" FROM buckets WHERE name = ?", name)
	return scanBucket(row)
}

func (t *tx) ListBuckets(ctx context.Context) ([]ledger.Bucket, error) {
	rows, err := t.q.QueryContext(ctx,
		"SELECT "+bucketColumns+" FROM buckets ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []ledger.Bucket
	for rows.Next() {
		b, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, *b)
	}
	return buckets, rows.Err()
}

func (t *tx) CreateBucket(ctx context.Context, b *ledger.Bucket) error {
	now := time.Now().UTC()
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO buckets (name, monthly_amount, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		b.Name, nullDecimalPtr(b.MonthlyAmount), b.Balance.String(),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	b.ID, err = res.LastInsertId()
	b.CreatedAt, b.UpdatedAt = now, now
	return err
}

func (t *tx) SetBucketMonthly(ctx context.Context, id int64, monthly *decimal.Decimal) error {
	_, err := t.q.ExecContext(ctx,
		"UPDATE buckets SET monthly_amount = ?, updated_at = ? WHERE id = ?",
		nullDecimalPtr(monthly), nowRFC3339(), id)
	return err
}

// ApplyDelta adds entry.Amount to the bucket's balance and records the entry
// in the same SQL transaction. Balance arithmetic happens here in Go since
// balances are stored as decimal strings.
func (t *tx) ApplyDelta(ctx context.Context, entry *ledger.BucketEntry) error {
	b, err := t.GetBucket(ctx, entry.BucketID)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("bucket %d does not exist", entry.BucketID)
	}

	newBalance := b.Balance.Add(entry.Amount)
	if _, err := t.q.ExecContext(ctx,
		"UPDATE buckets SET balance = ?, updated_at = ? WHERE id = ?",
		newBalance.String(), nowRFC3339(), entry.BucketID); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	entry.BucketName = b.Name
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO bucket_entries (id, kind, event_id, bucket_id, amount, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.EventID, entry.BucketID,
		entry.Amount.String(), entry.Reference, entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record bucket entry: %w", err)
	}
	return nil
}

func scanBucket(row interface{ Scan(...any) error }) (*ledger.Bucket, error) {
	var b ledger.Bucket
	var monthly sql.NullString
	var balance, createdAt, updatedAt string

	err := row.Scan(&b.ID, &b.Name, &monthly, &balance, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if monthly.Valid {
		m := scanDecimal(monthly.String)
		b.MonthlyAmount = &m
	}
	b.Balance = scanDecimal(balance)
	b.CreatedAt = parseRFC3339(createdAt)
	b.UpdatedAt = parseRFC3339(updatedAt)
	return &b, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

const categoryColumns = "id, name, color, is_system, is_income, display_order, bucket_id, created_at, updated_at"

func (t *tx) GetCategory(ctx context.Context, id int64) (*ledger.Category, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	return scanCategory(row)
}

func (t *tx) GetCategoryByName(ctx context.Context, name string) (*ledger.Category, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE name = ?", name)
	return scanCategory(row)
}

func (t *tx) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	rows, err := t.q.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories ORDER BY display_order, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []ledger.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, *c)
	}
	return cats, rows.Err()
}

func (t *tx) CreateCategory(ctx context.Context, c *ledger.Category) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO categories (id, name, color, is_system, is_income, display_order, bucket_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(c.ID), c.Name, c.Color, c.IsSystem, c.IsIncome,
		c.DisplayOrder, c.BucketID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create category: %w", err)
	}
	if c.ID == 0 {
		c.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateCategory(ctx context.Context, c *ledger.Category) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE categories SET name = ?, color = ?, is_system = ?, is_income = ?,
			display_order = ?, bucket_id = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.Color, c.IsSystem, c.IsIncome,
		c.DisplayOrder, c.BucketID, c.CreatedAt, c.UpdatedAt, c.ID,
	)
	return err
}

func scanCategory(row interface{ Scan(...any) error }) (*ledger.Category, error) {
	var c ledger.Category
	var bucketID sql.NullInt64

	err := row.Scan(&c.ID, &c.Name, &c.Color, &c.IsSystem, &c.IsIncome,
		&c.DisplayOrder, &bucketID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if bucketID.Valid {
		c.BucketID = &bucketID.Int64
	}
	return &c, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

const transactionColumns = `id, amount, merchant_name, category, transaction_type, date_time,
	description, sms_body, bank_name, sms_sender, account_number, balance_after,
	transaction_hash, is_recurring, is_deleted, created_at, updated_at, currency,
	from_account, to_account`

func (t *tx) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	return scanTransaction(row)
}

func (t *tx) GetTransactionByHash(ctx context.Context, hash string) (*ledger.Transaction, error) {
	row := t.q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE transaction_hash = ?", hash)
	return scanTransaction(row)
}

func (t *tx) ListTransactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions ORDER BY date_time DESC LIMIT ?", limit)
}

func (t *tx) ListIncomeTransactions(ctx context.Context, limit int) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE transaction_type = ? AND category = ? AND is_deleted = 0
		ORDER BY date_time DESC LIMIT ?`,
		ledger.TxTypeIncome, ledger.IncomeCategoryName, limit)
}

func (t *tx) ListActiveTransactions(ctx context.Context) ([]ledger.Transaction, error) {
	return t.queryTransactions(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE is_deleted = 0")
}

func (t *tx) CreateTransaction(ctx context.Context, txn *ledger.Transaction) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (id, amount, merchant_name, category, transaction_type, date_time,
			description, sms_body, bank_name, sms_sender, account_number, balance_after,
			transaction_hash, is_recurring, is_deleted, created_at, updated_at, currency,
			from_account, to_account)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(txn.ID), txn.Amount.String(), txn.MerchantName, txn.Category, txn.Type,
		txn.DateTime, txn.Description, txn.SmsBody, txn.BankName, txn.SmsSender,
		txn.AccountNumber, txn.BalanceAfter, txn.Hash, txn.IsRecurring, txn.IsDeleted,
		txn.CreatedAt, txn.UpdatedAt, txn.Currency, txn.FromAccount, txn.ToAccount,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	if txn.ID == 0 {
		txn.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateTransaction(ctx context.Context, txn *ledger.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE transactions SET amount = ?, merchant_name = ?, category = ?,
			transaction_type = ?, date_time = ?, description = ?, sms_body = ?,
			bank_name = ?, sms_sender = ?, account_number = ?, balance_after = ?,
			transaction_hash = ?, is_recurring = ?, is_deleted = ?, created_at = ?,
			updated_at = ?, currency = ?, from_account = ?, to_account = ?
		WHERE id = ?`,
		txn.Amount.String(), txn.MerchantName, txn.Category, txn.Type, txn.DateTime,
		txn.Description, txn.SmsBody, txn.BankName, txn.SmsSender, txn.AccountNumber,
		txn.BalanceAfter, txn.Hash, txn.IsRecurring, txn.IsDeleted, txn.CreatedAt,
		txn.UpdatedAt, txn.Currency, txn.FromAccount, txn.ToAccount, txn.ID,
	)
	return err
}

func (t *tx) queryTransactions(ctx context.Context, query string, args ...any) ([]ledger.Transaction, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txns []ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func scanTransaction(row interface{ Scan(...any) error }) (*ledger.Transaction, error) {
	var txn ledger.Transaction
	var amount string

	err := row.Scan(&txn.ID, &amount, &txn.MerchantName, &txn.Category, &txn.Type,
		&txn.DateTime, &txn.Description, &txn.SmsBody, &txn.BankName, &txn.SmsSender,
		&txn.AccountNumber, &txn.BalanceAfter, &txn.Hash, &txn.IsRecurring,
		&txn.IsDeleted, &txn.CreatedAt, &txn.UpdatedAt, &txn.Currency,
		&txn.FromAccount, &txn.ToAccount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	txn.Amount = scanDecimal(amount)
	return &txn, nil
}

// =============================================================================
// DISTRIBUTION EVENTS
// =============================================================================

func (t *tx) CreateDistributionEvent(ctx context.Context, ev *ledger.DistributionEvent) error {
	ev.ID = uuid.NewString()
	ev.CreatedAt = time.Now().UTC()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO distribution_events (id, transaction_id, total_amount, reverted, created_at)
		VALUES (?, ?, ?, 0, ?)`,
		ev.ID, ev.TransactionID, ev.TotalAmount.String(), ev.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create distribution event: %w", err)
	}
	return nil
}

func (t *tx) GetDistributionEvent(ctx context.Context, id string) (*ledger.DistributionEvent, error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT id, transaction_id, total_amount, reverted, created_at
		FROM distribution_events WHERE id = ?`, id)
	return scanEvent(row)
}

func (t *tx) ListDistributionEvents(ctx context.Context, limit int) ([]ledger.DistributionEvent, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, transaction_id, total_amount, reverted, created_at
		FROM distribution_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.DistributionEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// DistributionLogs returns the event's DISTRIBUTE entries in insertion order
// with bucket names joined in.
func (t *tx) DistributionLogs(ctx context.Context, eventID string) ([]ledger.BucketEntry, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT e.id, e.kind, e.event_id, e.bucket_id, b.name, e.amount, e.reference, e.created_at
		FROM bucket_entries e
		JOIN buckets b ON b.id = e.bucket_id
		WHERE e.event_id = ? AND e.kind = ?
		ORDER BY e.rowid ASC`,
		eventID, string(ledger.EntryDistribute))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.BucketEntry
	for rows.Next() {
		var e ledger.BucketEntry
		var kind, amount, createdAt string
		if err := rows.Scan(&e.ID, &kind, &e.EventID, &e.BucketID, &e.BucketName,
			&amount, &e.Reference, &createdAt); err != nil {
			return nil, err
		}
		e.Kind = ledger.EntryKind(kind)
		e.Amount = scanDecimal(amount)
		e.CreatedAt = parseRFC3339(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (t *tx) MarkEventReverted(ctx context.Context, id string) error {
	_, err := t.q.ExecContext(ctx,
		"UPDATE distribution_events SET reverted = 1 WHERE id = ?", id)
	return err
}

func scanEvent(row interface{ Scan(...any) error }) (*ledger.DistributionEvent, error) {
	var ev ledger.DistributionEvent
	var total, createdAt string

	err := row.Scan(&ev.ID, &ev.TransactionID, &total, &ev.Reverted, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.TotalAmount = scanDecimal(total)
	ev.CreatedAt = parseRFC3339(createdAt)
	return &ev, nil
}

// =============================================================================
// IMPORT AUDIT
// =============================================================================

func (t *tx) CreateImportLog(ctx context.Context, log *ledger.ImportLog) error {
	log.ID = uuid.NewString()
	log.StartedAt = time.Now().UTC()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO import_logs (id, filename, status, started_at, error_message)
		VALUES (?, ?, ?, ?, '')`,
		log.ID, log.Filename, log.Status, log.StartedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create import log: %w", err)
	}
	return nil
}

func (t *tx) SetImportStatus(ctx context.Context, id, status, errMsg string, completedAt time.Time) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE import_logs SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ?`,
		status, errMsg, completedAt.Format(time.RFC3339), id)
	return err
}

func (t *tx) AddRowLog(ctx context.Context, row *ledger.ImportRowLog) error {
	row.ID = uuid.NewString()
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO import_row_logs (id, import_id, action, entity, entity_id)
		VALUES (?, ?, ?, ?, ?)`,
		row.ID, row.ImportID, row.Action, string(row.Entity), row.EntityID)
	return err
}

func (t *tx) ListImportLogs(ctx context.Context, limit int) ([]ledger.ImportLog, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id, filename, status, started_at, completed_at, error_message
		FROM import_logs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []ledger.ImportLog
	for rows.Next() {
		var l ledger.ImportLog
		var startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&l.ID, &l.Filename, &l.Status, &startedAt,
			&completedAt, &l.ErrorMessage); err != nil {
			return nil, err
		}
		l.StartedAt = parseRFC3339(startedAt)
		if completedAt.Valid {
			c := parseRFC3339(completedAt.String)
			l.CompletedAt = &c
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (t *tx) RowLogCounts(ctx context.Context, importID string) (map[string]int, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT action, COUNT(*) FROM import_row_logs
		WHERE import_id = ? GROUP BY action`, importID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}
