package backup_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennywise/budget-engine/backup"
	"github.com/pennywise/budget-engine/ledger"
	"github.com/pennywise/budget-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestImporter(t *testing.T) (*backup.Importer, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return backup.New(store, zerolog.Nop()), store
}

func strp(s string) *string { return &s }
func i64p(v int64) *int64   { return &v }

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func txnRecord(hash, amount, category, txType string) backup.TransactionRecord {
	return backup.TransactionRecord{
		Amount:          strp(amount),
		Category:        strp(category),
		TransactionType: strp(txType),
		TransactionHash: strp(hash),
		MerchantName:    strp("Acme"),
	}
}

func snapshot(db *backup.DatabaseSection) *backup.Snapshot {
	return &backup.Snapshot{Format: "pennywise-backup", Database: db}
}

func bucketBalance(t *testing.T, store *sqlite.Store, name string) decimal.Decimal {
	t.Helper()
	var b *ledger.Bucket
	err := store.WithTx(context.Background(), func(tx ledger.Tx) error {
		var err error
		b, err = tx.GetBucketByName(context.Background(), name)
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, b, "bucket %q should exist", name)
	return b.Balance
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestProcessBackup_NoDatabaseSection_CompletesImmediately(t *testing.T) {
	// GIVEN: A snapshot carrying only metadata
	// WHEN: Processing it
	// THEN: The run completes with no row logs

	im, _ := newTestImporter(t)
	ctx := context.Background()

	res, err := im.ProcessBackup(ctx, "meta-only.json", snapshot(nil))
	require.NoError(t, err)
	assert.Equal(t, ledger.ImportCompleted, res.Status)
	assert.Empty(t, res.Counts)

	runs, err := im.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.ImportCompleted, runs[0].Log.Status)
	assert.NotNil(t, runs[0].Log.CompletedAt)
	assert.Empty(t, runs[0].Counts)
}

func TestProcessBackup_FailureMarksRunFailed(t *testing.T) {
	// GIVEN: A store whose card inserts always fail
	// WHEN: Processing a snapshot with a category and a card
	// THEN: The run is FAILED with the cause, and the category rolled back

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	im := backup.New(&cardFailingStore{inner: store}, zerolog.Nop())
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Cards:      []backup.CardRecord{{ID: i64p(1), BankName: strp("ICICI")}},
	}
	res, err := im.ProcessBackup(ctx, "bad.json", snapshot(db))
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ledger.ImportFailed, res.Status)

	runs, err := im.ListImports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ledger.ImportFailed, runs[0].Log.Status)
	assert.Contains(t, runs[0].Log.ErrorMessage, "card insert failed")

	// The merge unit rolled back, so the category never landed.
	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		cat, err := tx.GetCategoryByName(ctx, "Food")
		require.NoError(t, err)
		assert.Nil(t, cat)
		return nil
	})
	require.NoError(t, err)
}

// cardFailingStore fails every card insert; everything else passes through.
type cardFailingStore struct {
	inner ledger.Store
}

func (s *cardFailingStore) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.inner.WithTx(ctx, func(tx ledger.Tx) error {
		return fn(&cardFailingTx{Tx: tx})
	})
}

type cardFailingTx struct {
	ledger.Tx
}

func (t *cardFailingTx) InsertCard(ctx context.Context, c *ledger.Card) error {
	return errors.New("card insert failed")
}

// =============================================================================
// MERGE SEMANTICS
// =============================================================================

func TestProcessBackup_AddsAllCollections(t *testing.T) {
	im, store := newTestImporter(t)
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Income"), IsIncome: i64p(1)}},
		Cards:      []backup.CardRecord{{ID: i64p(7), BankName: strp("HDFC"), CardLast4: strp("1234")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "5000", "Income", ledger.TxTypeIncome),
		},
		AccountBalances: []backup.AccountBalanceRecord{{
			BankName: strp("HDFC"), AccountLast4: strp("9876"),
			Timestamp: strp("2026-08-01T10:00:00"), Balance: strp("1200.50"),
		}},
		Subscriptions:    []backup.SubscriptionRecord{{ID: i64p(3), MerchantName: strp("Netflix")}},
		MerchantMappings: []backup.MerchantMappingRecord{{MerchantName: strp("Acme"), Category: strp("Shopping")}},
		UnrecognizedMessages: []backup.UnrecognizedMessageRecord{{
			Sender: strp("VK-BANK"), SmsBody: strp("hello"),
		}},
		ChatMessages:     []backup.ChatMessageRecord{{ID: strp("cm-1"), Message: strp("hi"), IsUser: i64p(1)}},
		TransactionRules: []backup.TransactionRuleRecord{{ID: strp("rule-1"), Name: strp("tag groceries")}},
		RuleApplications: []backup.RuleApplicationRecord{{ID: strp("app-1"), RuleID: strp("rule-1")}},
		ExchangeRates: []backup.ExchangeRateRecord{{
			FromCurrency: strp("USD"), ToCurrency: strp("INR"), Rate: strp("83.20"),
		}},
	}

	res, err := im.ProcessBackup(ctx, "full.json", snapshot(db))
	require.NoError(t, err)
	assert.Equal(t, ledger.ImportCompleted, res.Status)
	assert.Equal(t, 11, res.Counts[ledger.RowAdded])
	assert.Zero(t, res.Counts[ledger.RowUpdated])

	// The income transaction landed in the Income category's bucket.
	assert.True(t, d("5000").Equal(bucketBalance(t, store, "Income")))
}

func TestProcessBackup_CategoryAddCreatesLinkedBucket(t *testing.T) {
	im, store := newTestImporter(t)
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Groceries"), Color: strp("#00ff00")}},
	}
	_, err := im.ProcessBackup(ctx, "cats.json", snapshot(db))
	require.NoError(t, err)

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		cat, err := tx.GetCategoryByName(ctx, "Groceries")
		require.NoError(t, err)
		require.NotNil(t, cat)
		require.True(t, cat.Linked())

		b, err := tx.GetBucket(ctx, *cat.BucketID)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, "Groceries", b.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestProcessBackup_CategoryAddReusesExistingBucket(t *testing.T) {
	// GIVEN: A bucket named Others already exists (created by a distribution)
	// WHEN: A snapshot adds an Others category
	// THEN: The category links to the existing bucket instead of failing

	im, store := newTestImporter(t)
	ctx := context.Background()

	var existing ledger.Bucket
	err := store.WithTx(ctx, func(tx ledger.Tx) error {
		existing = ledger.Bucket{Name: ledger.OthersBucketName, Balance: d("2000")}
		return tx.CreateBucket(ctx, &existing)
	})
	require.NoError(t, err)

	db := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp(ledger.OthersBucketName)}},
	}
	res, err := im.ProcessBackup(ctx, "others.json", snapshot(db))
	require.NoError(t, err)
	assert.Equal(t, ledger.ImportCompleted, res.Status)
	assert.Equal(t, 1, res.Counts[ledger.RowAdded])

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		cat, err := tx.GetCategoryByName(ctx, ledger.OthersBucketName)
		require.NoError(t, err)
		require.NotNil(t, cat)
		require.True(t, cat.Linked())
		assert.Equal(t, existing.ID, *cat.BucketID)

		buckets, err := tx.ListBuckets(ctx)
		require.NoError(t, err)
		assert.Len(t, buckets, 1)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, d("2000").Equal(bucketBalance(t, store, ledger.OthersBucketName)))
}

func TestProcessBackup_SecondRunIsIdempotent(t *testing.T) {
	// GIVEN: A snapshot already applied
	// WHEN: Applying the identical snapshot again
	// THEN: Every row is SKIPPED and balances are untouched

	im, store := newTestImporter(t)
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Food", ledger.TxTypeExpense),
		},
	}

	_, err := im.ProcessBackup(ctx, "one.json", snapshot(db))
	require.NoError(t, err)
	require.True(t, d("-100").Equal(bucketBalance(t, store, "Food")))

	res, err := im.ProcessBackup(ctx, "two.json", snapshot(db))
	require.NoError(t, err)
	assert.Zero(t, res.Counts[ledger.RowAdded])
	assert.Zero(t, res.Counts[ledger.RowUpdated])
	assert.Equal(t, 2, res.Counts[ledger.RowSkipped])
	assert.True(t, d("-100").Equal(bucketBalance(t, store, "Food")))
}

func TestProcessBackup_UpdateRevertsOldEffectThenAppliesNew(t *testing.T) {
	// GIVEN: An expense of 100 already applied (bucket at -100)
	// WHEN: The same hash arrives with amount 150
	// THEN: The bucket nets to exactly -150

	im, store := newTestImporter(t)
	ctx := context.Background()

	base := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Food", ledger.TxTypeExpense),
		},
	}
	_, err := im.ProcessBackup(ctx, "v1.json", snapshot(base))
	require.NoError(t, err)

	updated := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "150", "Food", ledger.TxTypeExpense),
		},
	}
	res, err := im.ProcessBackup(ctx, "v2.json", snapshot(updated))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[ledger.RowUpdated])
	assert.True(t, d("-150").Equal(bucketBalance(t, store, "Food")))
}

func TestProcessBackup_CategoryChangeMovesEffect(t *testing.T) {
	im, store := newTestImporter(t)
	ctx := context.Background()

	base := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}, {Name: strp("Travel")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Food", ledger.TxTypeExpense),
		},
	}
	_, err := im.ProcessBackup(ctx, "v1.json", snapshot(base))
	require.NoError(t, err)

	moved := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}, {Name: strp("Travel")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Travel", ledger.TxTypeExpense),
		},
	}
	_, err = im.ProcessBackup(ctx, "v2.json", snapshot(moved))
	require.NoError(t, err)

	assert.True(t, bucketBalance(t, store, "Food").IsZero())
	assert.True(t, d("-100").Equal(bucketBalance(t, store, "Travel")))
}

func TestProcessBackup_AbsentTransactionSoftDeletedAndReversed(t *testing.T) {
	// GIVEN: An applied expense
	// WHEN: A later snapshot no longer carries its hash
	// THEN: The row is soft-deleted and the balance restored

	im, store := newTestImporter(t)
	ctx := context.Background()

	base := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Food", ledger.TxTypeExpense),
		},
	}
	_, err := im.ProcessBackup(ctx, "v1.json", snapshot(base))
	require.NoError(t, err)

	without := &backup.DatabaseSection{
		Categories:   []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{},
	}
	res, err := im.ProcessBackup(ctx, "v2.json", snapshot(without))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[ledger.RowDeleted])
	assert.True(t, bucketBalance(t, store, "Food").IsZero())

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		txn, err := tx.GetTransactionByHash(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, txn)
		assert.True(t, txn.IsDeleted)
		return nil
	})
	require.NoError(t, err)
}

func TestProcessBackup_ReimportAfterSoftDelete(t *testing.T) {
	// An omitted is_deleted field never resurrects a soft-deleted row; an
	// explicit is_deleted=0 re-activates it and re-applies its effect.
	im, store := newTestImporter(t)
	ctx := context.Background()

	base := &backup.DatabaseSection{
		Categories: []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Food", ledger.TxTypeExpense),
		},
	}
	_, err := im.ProcessBackup(ctx, "v1.json", snapshot(base))
	require.NoError(t, err)

	_, err = im.ProcessBackup(ctx, "v2.json", snapshot(&backup.DatabaseSection{
		Categories:   []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{},
	}))
	require.NoError(t, err)
	require.True(t, bucketBalance(t, store, "Food").IsZero())

	// Same record, is_deleted omitted: nothing to overwrite, row stays dead.
	// Both the unchanged category and the unchanged transaction log SKIPPED.
	res, err := im.ProcessBackup(ctx, "v3.json", snapshot(base))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Counts[ledger.RowSkipped])
	assert.True(t, bucketBalance(t, store, "Food").IsZero())

	// Explicit is_deleted=0 flips it back and re-applies the effect.
	active := txnRecord("h1", "100", "Food", ledger.TxTypeExpense)
	active.IsDeleted = i64p(0)
	res, err = im.ProcessBackup(ctx, "v4.json", snapshot(&backup.DatabaseSection{
		Categories:   []backup.CategoryRecord{{Name: strp("Food")}},
		Transactions: []backup.TransactionRecord{active},
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[ledger.RowUpdated])
	assert.True(t, d("-100").Equal(bucketBalance(t, store, "Food")))
}

func TestProcessBackup_MissingNaturalKeyIsSkippedSilently(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Transactions: []backup.TransactionRecord{
			{Amount: strp("100"), Category: strp("Food")}, // no hash
		},
		Categories:       []backup.CategoryRecord{{Color: strp("#fff")}},           // no name
		MerchantMappings: []backup.MerchantMappingRecord{{Category: strp("Food")}}, // no merchant
	}
	res, err := im.ProcessBackup(ctx, "keyless.json", snapshot(db))
	require.NoError(t, err)
	assert.Equal(t, ledger.ImportCompleted, res.Status)
	assert.Empty(t, res.Counts)
}

func TestProcessBackup_UnknownCategoryHasNoBalanceEffect(t *testing.T) {
	// A transaction whose category has no stored row merges fine; only the
	// balance posting is skipped.
	im, store := newTestImporter(t)
	ctx := context.Background()

	db := &backup.DatabaseSection{
		Transactions: []backup.TransactionRecord{
			txnRecord("h1", "100", "Mystery", ledger.TxTypeExpense),
		},
	}
	res, err := im.ProcessBackup(ctx, "orphan.json", snapshot(db))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Counts[ledger.RowAdded])

	err = store.WithTx(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBucketByName(ctx, "Mystery")
		require.NoError(t, err)
		assert.Nil(t, b)
		return nil
	})
	require.NoError(t, err)
}
