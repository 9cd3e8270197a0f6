/*
importer.go - Reconciliation run lifecycle

RUN SHAPE:
  1. Commit an import log in STARTED state, standalone, so the attempt is
     on record even if the process dies mid-merge.
  2. Merge every collection and mark the log COMPLETED inside ONE unit of
     work. A failure anywhere rolls back all merge mutations.
  3. On failure, record FAILED with the error message in a fresh unit.

GROUP ORDER:
  Categories go first so transaction effects can land in their buckets,
  then cards, then transactions with the soft-delete pass, then the
  independent collections. A snapshot without a database section completes
  immediately with no row logs.
*/
package backup

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pennywise/budget-engine/ledger"
)

// Importer reconciles device snapshots against the store.
type Importer struct {
	store ledger.Store
	log   zerolog.Logger
}

// New creates an importer.
func New(store ledger.Store, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// ImportResult summarizes one reconciliation run.
type ImportResult struct {
	ImportID string
	Status   string
	Counts   map[string]int // row action -> count
}

// ImportSummary is a past run with its row action counts, for audit reads.
type ImportSummary struct {
	Log    ledger.ImportLog
	Counts map[string]int
}

// ProcessBackup runs one reconciliation pass over snap. The returned result
// always carries the import id, even when the run failed.
func (im *Importer) ProcessBackup(ctx context.Context, filename string, snap *Snapshot) (*ImportResult, error) {
	var imp ledger.ImportLog
	err := im.store.WithTx(ctx, func(tx ledger.Tx) error {
		imp = ledger.ImportLog{Filename: filename, Status: ledger.ImportStarted}
		return tx.CreateImportLog(ctx, &imp)
	})
	if err != nil {
		return nil, ledger.AsInternal(err)
	}

	rl := &rowRecorder{importID: imp.ID, log: im.log}

	err = im.store.WithTx(ctx, func(tx ledger.Tx) error {
		if snap.Database != nil {
			if err := im.mergeAll(ctx, tx, rl, snap.Database); err != nil {
				return err
			}
		}
		return tx.SetImportStatus(ctx, imp.ID, ledger.ImportCompleted, "", time.Now().UTC())
	})
	if err != nil {
		im.recordFailure(ctx, imp.ID, err)
		return &ImportResult{ImportID: imp.ID, Status: ledger.ImportFailed},
			ledger.AsInternal(err)
	}

	im.log.Info().
		Str("import_id", imp.ID).
		Str("filename", filename).
		Int("added", rl.counts[ledger.RowAdded]).
		Int("updated", rl.counts[ledger.RowUpdated]).
		Int("skipped", rl.counts[ledger.RowSkipped]).
		Int("deleted", rl.counts[ledger.RowDeleted]).
		Msg("backup reconciled")
	return &ImportResult{ImportID: imp.ID, Status: ledger.ImportCompleted, Counts: rl.counts}, nil
}

func (im *Importer) mergeAll(ctx context.Context, tx ledger.Tx, rl *rowRecorder, db *DatabaseSection) error {
	if err := mergeGroup(ctx, tx, rl, db.Categories, categoryOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.Cards, cardOps()); err != nil {
		return err
	}
	present, err := mergeTransactions(ctx, tx, rl, db.Transactions)
	if err != nil {
		return err
	}
	if err := softDeleteAbsent(ctx, tx, rl, present); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.AccountBalances, accountBalanceOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.Subscriptions, subscriptionOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.MerchantMappings, merchantMappingOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.UnrecognizedMessages, unrecognizedMessageOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.ChatMessages, chatMessageOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.TransactionRules, transactionRuleOps()); err != nil {
		return err
	}
	if err := mergeGroup(ctx, tx, rl, db.RuleApplications, ruleApplicationOps()); err != nil {
		return err
	}
	return mergeGroup(ctx, tx, rl, db.ExchangeRates, exchangeRateOps())
}

// recordFailure transitions the import log to FAILED in its own unit of
// work; the merge unit has already rolled back by the time this runs.
func (im *Importer) recordFailure(ctx context.Context, importID string, cause error) {
	err := im.store.WithTx(ctx, func(tx ledger.Tx) error {
		return tx.SetImportStatus(ctx, importID, ledger.ImportFailed, cause.Error(), time.Now().UTC())
	})
	if err != nil {
		im.log.Error().Err(err).Str("import_id", importID).Msg("failed to record import failure")
	}
}

// ListImports returns recent runs, most recent first, with row counts.
func (im *Importer) ListImports(ctx context.Context, limit int) ([]ImportSummary, error) {
	var out []ImportSummary
	err := im.store.WithTx(ctx, func(tx ledger.Tx) error {
		logs, err := tx.ListImportLogs(ctx, limit)
		if err != nil {
			return err
		}
		out = make([]ImportSummary, 0, len(logs))
		for _, l := range logs {
			counts, err := tx.RowLogCounts(ctx, l.ID)
			if err != nil {
				return err
			}
			out = append(out, ImportSummary{Log: l, Counts: counts})
		}
		return nil
	})
	return out, ledger.AsInternal(err)
}
