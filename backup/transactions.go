/*
transactions.go - Balance-affecting transaction merge

Transactions are the one collection whose merge moves money: each stored
transaction's net effect on its category's bucket must always equal the
latest version of that transaction. Updates therefore reverse the previously
applied effect before applying the new one, and the soft-delete pass
reverses the effect of any active transaction the snapshot no longer
carries.
*/
package backup

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/pennywise/budget-engine/ledger"
)

// mergeTransactions reconciles the snapshot's transactions and returns the
// set of hashes it saw, for the soft-delete pass.
func mergeTransactions(ctx context.Context, tx ledger.Tx, rl *rowRecorder, recs []TransactionRecord) (map[string]struct{}, error) {
	present := make(map[string]struct{}, len(recs))

	for i := range recs {
		r := &recs[i]
		if r.TransactionHash == nil {
			rl.droppedKey(ledger.EntityTransaction)
			continue
		}
		present[*r.TransactionHash] = struct{}{}

		existing, err := tx.GetTransactionByHash(ctx, *r.TransactionHash)
		if err != nil {
			return nil, err
		}

		if existing == nil {
			var t ledger.Transaction
			applyTransaction(r, &t)
			if err := tx.CreateTransaction(ctx, &t); err != nil {
				return nil, err
			}
			if err := applyEffect(ctx, tx, &t, effectOf(&t)); err != nil {
				return nil, err
			}
			if err := rl.record(ctx, tx, ledger.RowAdded, ledger.EntityTransaction, formatID(t.ID)); err != nil {
				return nil, err
			}
			continue
		}

		old := *existing
		if !applyTransaction(r, existing) {
			if err := rl.record(ctx, tx, ledger.RowSkipped, ledger.EntityTransaction, formatID(existing.ID)); err != nil {
				return nil, err
			}
			continue
		}

		if err := tx.UpdateTransaction(ctx, existing); err != nil {
			return nil, err
		}
		// Undo what the old version contributed, then apply the new version.
		// The bucket is resolved per version so a category change moves the
		// effect to the right bucket.
		if err := applyEffect(ctx, tx, &old, ledger.Reverse(effectOf(&old))); err != nil {
			return nil, err
		}
		if err := applyEffect(ctx, tx, existing, effectOf(existing)); err != nil {
			return nil, err
		}
		if err := rl.record(ctx, tx, ledger.RowUpdated, ledger.EntityTransaction, formatID(existing.ID)); err != nil {
			return nil, err
		}
	}
	return present, nil
}

// softDeleteAbsent marks every active transaction missing from the snapshot
// as deleted and reverses its balance effect.
func softDeleteAbsent(ctx context.Context, tx ledger.Tx, rl *rowRecorder, present map[string]struct{}) error {
	active, err := tx.ListActiveTransactions(ctx)
	if err != nil {
		return err
	}
	for i := range active {
		t := &active[i]
		if _, ok := present[t.Hash]; ok {
			continue
		}
		effect := effectOf(t) // compute before the flag flips
		t.IsDeleted = true
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		if err := applyEffect(ctx, tx, t, ledger.Reverse(effect)); err != nil {
			return err
		}
		if err := rl.record(ctx, tx, ledger.RowDeleted, ledger.EntityTransaction, formatID(t.ID)); err != nil {
			return err
		}
	}
	return nil
}

// effectOf is the transaction's signed bucket delta, zero when it has none.
func effectOf(t *ledger.Transaction) decimal.Decimal {
	delta, ok := ledger.EffectDelta(t.Type, t.Amount, t.IsDeleted)
	if !ok {
		return decimal.Zero
	}
	return delta
}

// applyEffect posts delta to the bucket owning the transaction's category.
// A zero delta, an unknown category, or a category without a resolvable
// bucket all leave balances untouched.
func applyEffect(ctx context.Context, tx ledger.Tx, t *ledger.Transaction, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	b, err := resolveEffectBucket(ctx, tx, t.Category)
	if err != nil || b == nil {
		return err
	}
	entry := ledger.BucketEntry{
		Kind:      ledger.EntryTransaction,
		BucketID:  b.ID,
		Amount:    delta,
		Reference: formatID(t.ID),
	}
	return tx.ApplyDelta(ctx, &entry)
}

// resolveEffectBucket finds the bucket for a category name, lazily linking
// one when the category exists but was never linked. An unknown category
// resolves to nil with no error.
func resolveEffectBucket(ctx context.Context, tx ledger.Tx, categoryName string) (*ledger.Bucket, error) {
	cat, err := tx.GetCategoryByName(ctx, categoryName)
	if err != nil || cat == nil {
		return nil, err
	}
	if !cat.Linked() {
		b, err := ensureBucketNamed(ctx, tx, cat.Name)
		if err != nil {
			return nil, err
		}
		cat.BucketID = &b.ID
		if err := tx.UpdateCategory(ctx, cat); err != nil {
			return nil, err
		}
		return b, nil
	}
	return tx.GetBucket(ctx, *cat.BucketID)
}

// ensureBucketNamed returns the bucket with the given name, creating it only
// when absent. Buckets can predate their category (the budget engine creates
// Others lazily), so linking must reuse the existing row instead of tripping
// the unique name constraint.
func ensureBucketNamed(ctx context.Context, tx ledger.Tx, name string) (*ledger.Bucket, error) {
	b, err := tx.GetBucketByName(ctx, name)
	if err != nil || b != nil {
		return b, err
	}
	b = &ledger.Bucket{Name: name}
	if err := tx.CreateBucket(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// applyTransaction overwrites t with every provided field of r.
func applyTransaction(r *TransactionRecord, t *ledger.Transaction) bool {
	var changed bool
	assign(&t.ID, r.ID, &changed)
	assignAmount(&t.Amount, r.Amount, &changed)
	assign(&t.MerchantName, r.MerchantName, &changed)
	assign(&t.Category, r.Category, &changed)
	assign(&t.Type, r.TransactionType, &changed)
	assign(&t.DateTime, r.DateTime, &changed)
	assign(&t.Description, r.Description, &changed)
	assign(&t.SmsBody, r.SmsBody, &changed)
	assign(&t.BankName, r.BankName, &changed)
	assign(&t.SmsSender, r.SmsSender, &changed)
	assign(&t.AccountNumber, r.AccountNumber, &changed)
	assign(&t.BalanceAfter, r.BalanceAfter, &changed)
	assign(&t.Hash, r.TransactionHash, &changed)
	assignFlag(&t.IsRecurring, r.IsRecurring, &changed)
	assignFlag(&t.IsDeleted, r.IsDeleted, &changed)
	assign(&t.CreatedAt, r.CreatedAt, &changed)
	assign(&t.UpdatedAt, r.UpdatedAt, &changed)
	assign(&t.Currency, r.Currency, &changed)
	assign(&t.FromAccount, r.FromAccount, &changed)
	assign(&t.ToAccount, r.ToAccount, &changed)
	return changed
}

// assignAmount parses the device's string amount, comparing by value so
// "100" and "100.00" do not register as a change.
func assignAmount(dst *decimal.Decimal, src *string, changed *bool) {
	if src == nil {
		return
	}
	v := ledger.MustParseDecimal(*src)
	if !dst.Equal(v) {
		*dst = v
		*changed = true
	}
}
