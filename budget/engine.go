/*
Package budget implements the budget ledger engine: distributing income into
buckets, moving funds between buckets, zeroing overdrawn buckets from the
Others pool, and exactly reverting past distributions.

OPERATIONS:
  Distribute(transactionID)  allocate an income transaction per bucket targets
  Transfer(from, to, amount) move funds, source may not go negative
  Reset(bucketID)            zero a negative bucket from Others
  Revert(eventID)            undo a distribution's logged deltas, once

Every operation is one atomic unit of work. Validation failures surface
before any mutation; mutation-phase failures roll the unit back and come out
as Internal. Every balance change goes through ledger.Tx.ApplyDelta, so each
operation leaves a complete audit trail of tagged bucket entries.
*/
package budget

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pennywise/budget-engine/ledger"
)

// Engine executes budget operations against a ledger store.
type Engine struct {
	store ledger.Store
	log   zerolog.Logger
}

// New creates a budget engine.
func New(store ledger.Store, log zerolog.Logger) *Engine {
	return &Engine{store: store, log: log}
}

// DistributionResult reports what a successful distribution did.
type DistributionResult struct {
	EventID   string
	Allocated decimal.Decimal
	Remainder decimal.Decimal
}

// Distribution is a past event with its per-bucket log, for audit reads.
type Distribution struct {
	Event ledger.DistributionEvent
	Logs  []ledger.BucketEntry
}

// =============================================================================
// DISTRIBUTE
// =============================================================================

// Distribute allocates the amount of an income transaction across buckets:
// every bucket with a monthly target receives exactly that target, and the
// remainder lands in Others (created lazily if absent). Fails with
// InsufficientFunds when the transaction cannot cover the summed targets.
func (e *Engine) Distribute(ctx context.Context, transactionID int64) (*DistributionResult, error) {
	var res DistributionResult

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		txn, err := tx.GetTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return fmt.Errorf("%w: transaction %d", ledger.ErrNotFound, transactionID)
		}
		if txn.IsDeleted {
			return &ledger.InvalidStateError{Reason: "transaction is deleted"}
		}
		if txn.Type != ledger.TxTypeIncome || txn.Category != ledger.IncomeCategoryName {
			return &ledger.InvalidStateError{
				Reason: fmt.Sprintf("transaction must be of category %q and type %s",
					ledger.IncomeCategoryName, ledger.TxTypeIncome),
			}
		}

		buckets, err := tx.ListBuckets(ctx)
		if err != nil {
			return err
		}
		others, buckets, err := ensureOthers(ctx, tx, buckets)
		if err != nil {
			return err
		}

		needed := decimal.Zero
		for i := range buckets {
			if buckets[i].Name != ledger.OthersBucketName {
				needed = needed.Add(buckets[i].Monthly())
			}
		}
		if txn.Amount.LessThan(needed) {
			return &ledger.InsufficientFundsError{Needed: needed, Available: txn.Amount}
		}

		ev := ledger.DistributionEvent{
			TransactionID: transactionID,
			TotalAmount:   txn.Amount,
		}
		if err := tx.CreateDistributionEvent(ctx, &ev); err != nil {
			return err
		}

		allocated := decimal.Zero
		for i := range buckets {
			b := &buckets[i]
			if b.Name == ledger.OthersBucketName || !b.Monthly().IsPositive() {
				continue
			}
			entry := ledger.BucketEntry{
				Kind:      ledger.EntryDistribute,
				EventID:   ev.ID,
				BucketID:  b.ID,
				Amount:    b.Monthly(),
				Reference: strconv.FormatInt(transactionID, 10),
			}
			if err := tx.ApplyDelta(ctx, &entry); err != nil {
				return err
			}
			allocated = allocated.Add(b.Monthly())
		}

		remainder := txn.Amount.Sub(allocated)
		if remainder.IsPositive() {
			entry := ledger.BucketEntry{
				Kind:      ledger.EntryDistribute,
				EventID:   ev.ID,
				BucketID:  others.ID,
				Amount:    remainder,
				Reference: strconv.FormatInt(transactionID, 10),
			}
			if err := tx.ApplyDelta(ctx, &entry); err != nil {
				return err
			}
		}

		res = DistributionResult{EventID: ev.ID, Allocated: allocated, Remainder: remainder}
		return nil
	})
	if err != nil {
		return nil, ledger.AsInternal(err)
	}

	e.log.Info().
		Int64("transaction_id", transactionID).
		Str("event_id", res.EventID).
		Str("allocated", ledger.FormatAmount(res.Allocated)).
		Str("remainder", ledger.FormatAmount(res.Remainder)).
		Msg("income distributed")
	return &res, nil
}

// ensureOthers resolves the Others singleton, creating it on first use.
// Returns the bucket and the (possibly extended) bucket list.
func ensureOthers(ctx context.Context, tx ledger.Tx, buckets []ledger.Bucket) (*ledger.Bucket, []ledger.Bucket, error) {
	for i := range buckets {
		if buckets[i].Name == ledger.OthersBucketName {
			return &buckets[i], buckets, nil
		}
	}
	b := ledger.Bucket{Name: ledger.OthersBucketName, Balance: decimal.Zero}
	if err := tx.CreateBucket(ctx, &b); err != nil {
		return nil, nil, err
	}
	buckets = append(buckets, b)
	return &buckets[len(buckets)-1], buckets, nil
}

// =============================================================================
// TRANSFER
// =============================================================================

// Transfer moves amount from one bucket to another. When transferAll is set
// the source's entire current balance moves instead, leaving it at exactly
// zero. The amount may not be negative and the resulting source balance may
// not go negative.
func (e *Engine) Transfer(ctx context.Context, fromID, toID int64, amount *decimal.Decimal, transferAll bool) (decimal.Decimal, error) {
	var moved decimal.Decimal

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		from, err := tx.GetBucket(ctx, fromID)
		if err != nil {
			return err
		}
		to, err := tx.GetBucket(ctx, toID)
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return fmt.Errorf("%w: one or both buckets", ledger.ErrNotFound)
		}

		switch {
		case transferAll:
			moved = from.Balance
		case amount != nil:
			if amount.IsNegative() {
				return fmt.Errorf("%w: amount must not be negative", ledger.ErrBadRequest)
			}
			moved = *amount
		default:
			return fmt.Errorf("%w: amount must be provided unless transfer_all is set", ledger.ErrBadRequest)
		}

		if from.Balance.Sub(moved).IsNegative() {
			return &ledger.InsufficientFundsError{Needed: moved, Available: from.Balance}
		}

		out := ledger.BucketEntry{
			Kind:      ledger.EntryTransfer,
			BucketID:  from.ID,
			Amount:    moved.Neg(),
			Reference: to.Name,
		}
		if err := tx.ApplyDelta(ctx, &out); err != nil {
			return err
		}
		in := ledger.BucketEntry{
			Kind:      ledger.EntryTransfer,
			BucketID:  to.ID,
			Amount:    moved,
			Reference: from.Name,
		}
		return tx.ApplyDelta(ctx, &in)
	})
	if err != nil {
		return decimal.Zero, ledger.AsInternal(err)
	}
	return moved, nil
}

// =============================================================================
// RESET
// =============================================================================

// Reset zeroes an overdrawn bucket by moving the shortfall out of Others.
// Only permitted while the bucket's balance is negative, and only when
// Others can cover the full amount.
func (e *Engine) Reset(ctx context.Context, bucketID int64) (decimal.Decimal, error) {
	var moved decimal.Decimal

	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBucket(ctx, bucketID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%w: bucket %d", ledger.ErrNotFound, bucketID)
		}
		if !b.Balance.IsNegative() {
			return &ledger.InvalidStateError{Reason: "balance is not negative"}
		}

		others, err := tx.GetBucketByName(ctx, ledger.OthersBucketName)
		if err != nil {
			return err
		}
		if others == nil {
			return ledger.Internalf("%q bucket missing", ledger.OthersBucketName)
		}

		moved = b.Balance.Abs()
		if others.Balance.LessThan(moved) {
			return &ledger.InsufficientFundsError{Needed: moved, Available: others.Balance}
		}

		out := ledger.BucketEntry{
			Kind:      ledger.EntryReset,
			BucketID:  others.ID,
			Amount:    moved.Neg(),
			Reference: b.Name,
		}
		if err := tx.ApplyDelta(ctx, &out); err != nil {
			return err
		}
		in := ledger.BucketEntry{
			Kind:      ledger.EntryReset,
			BucketID:  b.ID,
			Amount:    moved,
			Reference: others.Name,
		}
		return tx.ApplyDelta(ctx, &in)
	})
	if err != nil {
		return decimal.Zero, ledger.AsInternal(err)
	}
	return moved, nil
}

// =============================================================================
// REVERT
// =============================================================================

// Revert undoes a distribution by subtracting each logged amount from its
// bucket's current balance. The logged deltas are applied exactly as
// recorded; intervening transfers do not change what gets subtracted.
// A reverted event can never be reverted again.
func (e *Engine) Revert(ctx context.Context, eventID string) error {
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		ev, err := tx.GetDistributionEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if ev == nil {
			return fmt.Errorf("%w: distribution %s", ledger.ErrNotFound, eventID)
		}
		if ev.Reverted {
			return &ledger.InvalidStateError{Reason: "already reverted"}
		}

		logs, err := tx.DistributionLogs(ctx, eventID)
		if err != nil {
			return err
		}
		for _, l := range logs {
			entry := ledger.BucketEntry{
				Kind:      ledger.EntryRevert,
				EventID:   eventID,
				BucketID:  l.BucketID,
				Amount:    ledger.Reverse(l.Amount),
				Reference: l.ID,
			}
			if err := tx.ApplyDelta(ctx, &entry); err != nil {
				return err
			}
		}
		return tx.MarkEventReverted(ctx, eventID)
	})
	if err != nil {
		return ledger.AsInternal(err)
	}

	e.log.Info().Str("event_id", eventID).Msg("distribution reverted")
	return nil
}

// =============================================================================
// READS & TARGETS
// =============================================================================

// ListDistributions returns recent events, most recent first, with their
// per-bucket logs resolved.
func (e *Engine) ListDistributions(ctx context.Context, limit int) ([]Distribution, error) {
	var out []Distribution
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		events, err := tx.ListDistributionEvents(ctx, limit)
		if err != nil {
			return err
		}
		out = make([]Distribution, 0, len(events))
		for _, ev := range events {
			logs, err := tx.DistributionLogs(ctx, ev.ID)
			if err != nil {
				return err
			}
			out = append(out, Distribution{Event: ev, Logs: logs})
		}
		return nil
	})
	return out, ledger.AsInternal(err)
}

// SetBucketTarget updates a bucket's monthly allocation target.
func (e *Engine) SetBucketTarget(ctx context.Context, bucketID int64, monthly *decimal.Decimal) (*ledger.Bucket, error) {
	var out *ledger.Bucket
	err := e.store.WithTx(ctx, func(tx ledger.Tx) error {
		b, err := tx.GetBucket(ctx, bucketID)
		if err != nil {
			return err
		}
		if b == nil {
			return fmt.Errorf("%w: bucket %d", ledger.ErrNotFound, bucketID)
		}
		if err := tx.SetBucketMonthly(ctx, bucketID, monthly); err != nil {
			return err
		}
		b.MonthlyAmount = monthly
		out = b
		return nil
	})
	return out, ledger.AsInternal(err)
}
