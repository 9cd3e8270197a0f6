/*
merge.go - Generic natural-key merge

Every collection is merged by the same rule, parameterized by its natural
key: skip the record when any key field is absent, insert when no stored row
matches (ADDED), overwrite when any provided field differs (UPDATED), do
nothing otherwise (SKIPPED). Each processed record yields exactly one import
row log tagged with the resolved entity id.
*/
package backup

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/pennywise/budget-engine/ledger"
)

// groupOps parameterizes the merge for one collection. R is the snapshot
// record type, E the stored entity type.
type groupOps[R, E any] struct {
	entity ledger.EntityType

	// hasKey reports whether all natural-key fields are present.
	hasKey func(r *R) bool
	// find loads the stored row matching r's natural key, or nil.
	find func(ctx context.Context, tx ledger.Tx, r *R) (*E, error)
	// apply overwrites e with every provided field of r; reports change.
	apply func(r *R, e *E) bool
	// id renders the entity id for the row log (valid after insert).
	id func(e *E) string

	insert func(ctx context.Context, tx ledger.Tx, e *E) error
	update func(ctx context.Context, tx ledger.Tx, e *E) error
	// added runs after a successful insert (e.g. bucket creation for new
	// categories). Optional.
	added func(ctx context.Context, tx ledger.Tx, e *E) error
}

// mergeGroup applies one collection of snapshot records to the store.
func mergeGroup[R, E any](ctx context.Context, tx ledger.Tx, rl *rowRecorder, recs []R, ops groupOps[R, E]) error {
	for i := range recs {
		r := &recs[i]
		if !ops.hasKey(r) {
			rl.droppedKey(ops.entity)
			continue
		}

		existing, err := ops.find(ctx, tx, r)
		if err != nil {
			return err
		}

		if existing == nil {
			var e E
			ops.apply(r, &e)
			if err := ops.insert(ctx, tx, &e); err != nil {
				return err
			}
			if ops.added != nil {
				if err := ops.added(ctx, tx, &e); err != nil {
					return err
				}
			}
			if err := rl.record(ctx, tx, ledger.RowAdded, ops.entity, ops.id(&e)); err != nil {
				return err
			}
			continue
		}

		action := ledger.RowSkipped
		if ops.apply(r, existing) {
			if err := ops.update(ctx, tx, existing); err != nil {
				return err
			}
			action = ledger.RowUpdated
		}
		if err := rl.record(ctx, tx, action, ops.entity, ops.id(existing)); err != nil {
			return err
		}
	}
	return nil
}

// rowRecorder attaches row logs to the current import and tallies actions.
type rowRecorder struct {
	importID string
	log      zerolog.Logger
	counts   map[string]int
}

func (rl *rowRecorder) record(ctx context.Context, tx ledger.Tx, action string, entity ledger.EntityType, entityID string) error {
	if rl.counts == nil {
		rl.counts = make(map[string]int)
	}
	rl.counts[action]++
	return tx.AddRowLog(ctx, &ledger.ImportRowLog{
		ImportID: rl.importID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
	})
}

// droppedKey notes a record skipped for a missing natural key. These produce
// no row log, matching the source behavior; the debug line keeps the drop
// observable.
func (rl *rowRecorder) droppedKey(entity ledger.EntityType) {
	rl.log.Debug().Str("entity", string(entity)).Msg("record dropped: missing natural key")
}

// =============================================================================
// FIELD ASSIGNMENT HELPERS
// =============================================================================

// assign overwrites dst with a provided (non-nil) source field.
func assign[T comparable](dst *T, src *T, changed *bool) {
	if src != nil && *dst != *src {
		*dst = *src
		*changed = true
	}
}

// assignFlag converts the device's 0/1 integers to bool.
func assignFlag(dst *bool, src *int64, changed *bool) {
	if src != nil {
		v := *src != 0
		if *dst != v {
			*dst = v
			*changed = true
		}
	}
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// =============================================================================
// CATEGORIES
// =============================================================================

// categoryOps merges categories by name. A newly added category is linked
// 1:1 to the bucket sharing its name, reusing one that already exists (Others
// may predate its category); existing categories keep their bucket link
// untouched no matter what else updates.
func categoryOps() groupOps[CategoryRecord, ledger.Category] {
	return groupOps[CategoryRecord, ledger.Category]{
		entity: ledger.EntityCategory,
		hasKey: func(r *CategoryRecord) bool { return r.Name != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *CategoryRecord) (*ledger.Category, error) {
			return tx.GetCategoryByName(ctx, *r.Name)
		},
		apply: func(r *CategoryRecord, c *ledger.Category) bool {
			var changed bool
			assign(&c.ID, r.ID, &changed)
			assign(&c.Name, r.Name, &changed)
			assign(&c.Color, r.Color, &changed)
			assignFlag(&c.IsSystem, r.IsSystem, &changed)
			assignFlag(&c.IsIncome, r.IsIncome, &changed)
			assign(&c.DisplayOrder, r.DisplayOrder, &changed)
			assign(&c.CreatedAt, r.CreatedAt, &changed)
			assign(&c.UpdatedAt, r.UpdatedAt, &changed)
			return changed
		},
		id:     func(c *ledger.Category) string { return formatID(c.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, c *ledger.Category) error { return tx.CreateCategory(ctx, c) },
		update: func(ctx context.Context, tx ledger.Tx, c *ledger.Category) error { return tx.UpdateCategory(ctx, c) },
		added: func(ctx context.Context, tx ledger.Tx, c *ledger.Category) error {
			b, err := ensureBucketNamed(ctx, tx, c.Name)
			if err != nil {
				return err
			}
			c.BucketID = &b.ID
			return tx.UpdateCategory(ctx, c)
		},
	}
}

// =============================================================================
// INDEPENDENT COLLECTIONS
// =============================================================================

func cardOps() groupOps[CardRecord, ledger.Card] {
	return groupOps[CardRecord, ledger.Card]{
		entity: ledger.EntityCard,
		hasKey: func(r *CardRecord) bool { return r.ID != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *CardRecord) (*ledger.Card, error) {
			return tx.GetCard(ctx, *r.ID)
		},
		apply: func(r *CardRecord, c *ledger.Card) bool {
			var changed bool
			assign(&c.ID, r.ID, &changed)
			assign(&c.CardLast4, r.CardLast4, &changed)
			assign(&c.CardType, r.CardType, &changed)
			assign(&c.BankName, r.BankName, &changed)
			assign(&c.AccountLast4, r.AccountLast4, &changed)
			assign(&c.Nickname, r.Nickname, &changed)
			assignFlag(&c.IsActive, r.IsActive, &changed)
			assign(&c.LastBalance, r.LastBalance, &changed)
			assign(&c.LastBalanceSource, r.LastBalanceSource, &changed)
			assign(&c.LastBalanceDate, r.LastBalanceDate, &changed)
			assign(&c.CreatedAt, r.CreatedAt, &changed)
			assign(&c.UpdatedAt, r.UpdatedAt, &changed)
			assign(&c.Currency, r.Currency, &changed)
			return changed
		},
		id:     func(c *ledger.Card) string { return formatID(c.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, c *ledger.Card) error { return tx.InsertCard(ctx, c) },
		update: func(ctx context.Context, tx ledger.Tx, c *ledger.Card) error { return tx.UpdateCard(ctx, c) },
	}
}

func accountBalanceOps() groupOps[AccountBalanceRecord, ledger.AccountBalance] {
	return groupOps[AccountBalanceRecord, ledger.AccountBalance]{
		entity: ledger.EntityAccountBalance,
		hasKey: func(r *AccountBalanceRecord) bool {
			return r.BankName != nil && r.AccountLast4 != nil && r.Timestamp != nil
		},
		find: func(ctx context.Context, tx ledger.Tx, r *AccountBalanceRecord) (*ledger.AccountBalance, error) {
			return tx.GetAccountBalance(ctx, *r.BankName, *r.AccountLast4, *r.Timestamp)
		},
		apply: func(r *AccountBalanceRecord, a *ledger.AccountBalance) bool {
			var changed bool
			assign(&a.ID, r.ID, &changed)
			assign(&a.BankName, r.BankName, &changed)
			assign(&a.AccountLast4, r.AccountLast4, &changed)
			assign(&a.Balance, r.Balance, &changed)
			assign(&a.Timestamp, r.Timestamp, &changed)
			assign(&a.TransactionID, r.TransactionID, &changed)
			assign(&a.CreditLimit, r.CreditLimit, &changed)
			assignFlag(&a.IsCreditCard, r.IsCreditCard, &changed)
			assign(&a.SmsSource, r.SmsSource, &changed)
			assign(&a.SourceType, r.SourceType, &changed)
			assign(&a.CreatedAt, r.CreatedAt, &changed)
			assign(&a.Currency, r.Currency, &changed)
			return changed
		},
		id:     func(a *ledger.AccountBalance) string { return formatID(a.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, a *ledger.AccountBalance) error { return tx.InsertAccountBalance(ctx, a) },
		update: func(ctx context.Context, tx ledger.Tx, a *ledger.AccountBalance) error { return tx.UpdateAccountBalance(ctx, a) },
	}
}

func subscriptionOps() groupOps[SubscriptionRecord, ledger.Subscription] {
	return groupOps[SubscriptionRecord, ledger.Subscription]{
		entity: ledger.EntitySubscription,
		hasKey: func(r *SubscriptionRecord) bool { return r.ID != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *SubscriptionRecord) (*ledger.Subscription, error) {
			return tx.GetSubscription(ctx, *r.ID)
		},
		apply: func(r *SubscriptionRecord, s *ledger.Subscription) bool {
			var changed bool
			assign(&s.ID, r.ID, &changed)
			assign(&s.MerchantName, r.MerchantName, &changed)
			assign(&s.Amount, r.Amount, &changed)
			assign(&s.NextPaymentDate, r.NextPaymentDate, &changed)
			assign(&s.State, r.State, &changed)
			assign(&s.BankName, r.BankName, &changed)
			assign(&s.Umn, r.Umn, &changed)
			assign(&s.Category, r.Category, &changed)
			assign(&s.SmsBody, r.SmsBody, &changed)
			assign(&s.CreatedAt, r.CreatedAt, &changed)
			assign(&s.UpdatedAt, r.UpdatedAt, &changed)
			assign(&s.Currency, r.Currency, &changed)
			return changed
		},
		id:     func(s *ledger.Subscription) string { return formatID(s.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, s *ledger.Subscription) error { return tx.InsertSubscription(ctx, s) },
		update: func(ctx context.Context, tx ledger.Tx, s *ledger.Subscription) error { return tx.UpdateSubscription(ctx, s) },
	}
}

func merchantMappingOps() groupOps[MerchantMappingRecord, ledger.MerchantMapping] {
	return groupOps[MerchantMappingRecord, ledger.MerchantMapping]{
		entity: ledger.EntityMerchantMapping,
		hasKey: func(r *MerchantMappingRecord) bool { return r.MerchantName != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *MerchantMappingRecord) (*ledger.MerchantMapping, error) {
			return tx.GetMerchantMapping(ctx, *r.MerchantName)
		},
		apply: func(r *MerchantMappingRecord, m *ledger.MerchantMapping) bool {
			var changed bool
			assign(&m.MerchantName, r.MerchantName, &changed)
			assign(&m.Category, r.Category, &changed)
			assign(&m.CreatedAt, r.CreatedAt, &changed)
			assign(&m.UpdatedAt, r.UpdatedAt, &changed)
			return changed
		},
		id:     func(m *ledger.MerchantMapping) string { return m.MerchantName },
		insert: func(ctx context.Context, tx ledger.Tx, m *ledger.MerchantMapping) error { return tx.InsertMerchantMapping(ctx, m) },
		update: func(ctx context.Context, tx ledger.Tx, m *ledger.MerchantMapping) error { return tx.UpdateMerchantMapping(ctx, m) },
	}
}

func unrecognizedMessageOps() groupOps[UnrecognizedMessageRecord, ledger.UnrecognizedMessage] {
	return groupOps[UnrecognizedMessageRecord, ledger.UnrecognizedMessage]{
		entity: ledger.EntityUnrecognizedMessage,
		hasKey: func(r *UnrecognizedMessageRecord) bool { return r.Sender != nil && r.SmsBody != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *UnrecognizedMessageRecord) (*ledger.UnrecognizedMessage, error) {
			return tx.GetUnrecognizedMessage(ctx, *r.Sender, *r.SmsBody)
		},
		apply: func(r *UnrecognizedMessageRecord, u *ledger.UnrecognizedMessage) bool {
			var changed bool
			assign(&u.ID, r.ID, &changed)
			assign(&u.Sender, r.Sender, &changed)
			assign(&u.Body, r.SmsBody, &changed)
			assign(&u.ReceivedAt, r.ReceivedAt, &changed)
			assignFlag(&u.Reported, r.Reported, &changed)
			assignFlag(&u.IsDeleted, r.IsDeleted, &changed)
			assign(&u.CreatedAt, r.CreatedAt, &changed)
			return changed
		},
		id:     func(u *ledger.UnrecognizedMessage) string { return formatID(u.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, u *ledger.UnrecognizedMessage) error { return tx.InsertUnrecognizedMessage(ctx, u) },
		update: func(ctx context.Context, tx ledger.Tx, u *ledger.UnrecognizedMessage) error { return tx.UpdateUnrecognizedMessage(ctx, u) },
	}
}

func chatMessageOps() groupOps[ChatMessageRecord, ledger.ChatMessage] {
	return groupOps[ChatMessageRecord, ledger.ChatMessage]{
		entity: ledger.EntityChatMessage,
		hasKey: func(r *ChatMessageRecord) bool { return r.ID != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *ChatMessageRecord) (*ledger.ChatMessage, error) {
			return tx.GetChatMessage(ctx, *r.ID)
		},
		apply: func(r *ChatMessageRecord, m *ledger.ChatMessage) bool {
			var changed bool
			assign(&m.ID, r.ID, &changed)
			assign(&m.Message, r.Message, &changed)
			assignFlag(&m.IsUser, r.IsUser, &changed)
			assign(&m.Timestamp, r.Timestamp, &changed)
			assignFlag(&m.IsSystemPrompt, r.IsSystemPrompt, &changed)
			return changed
		},
		id:     func(m *ledger.ChatMessage) string { return m.ID },
		insert: func(ctx context.Context, tx ledger.Tx, m *ledger.ChatMessage) error { return tx.InsertChatMessage(ctx, m) },
		update: func(ctx context.Context, tx ledger.Tx, m *ledger.ChatMessage) error { return tx.UpdateChatMessage(ctx, m) },
	}
}

func transactionRuleOps() groupOps[TransactionRuleRecord, ledger.TransactionRule] {
	return groupOps[TransactionRuleRecord, ledger.TransactionRule]{
		entity: ledger.EntityTransactionRule,
		hasKey: func(r *TransactionRuleRecord) bool { return r.ID != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *TransactionRuleRecord) (*ledger.TransactionRule, error) {
			return tx.GetTransactionRule(ctx, *r.ID)
		},
		apply: func(r *TransactionRuleRecord, t *ledger.TransactionRule) bool {
			var changed bool
			assign(&t.ID, r.ID, &changed)
			assign(&t.Name, r.Name, &changed)
			assign(&t.Description, r.Description, &changed)
			assign(&t.Priority, r.Priority, &changed)
			assign(&t.Conditions, r.Conditions, &changed)
			assign(&t.Actions, r.Actions, &changed)
			assignFlag(&t.IsActive, r.IsActive, &changed)
			assignFlag(&t.IsSystemTemplate, r.IsSystemTemplate, &changed)
			assign(&t.CreatedAt, r.CreatedAt, &changed)
			assign(&t.UpdatedAt, r.UpdatedAt, &changed)
			return changed
		},
		id:     func(t *ledger.TransactionRule) string { return t.ID },
		insert: func(ctx context.Context, tx ledger.Tx, t *ledger.TransactionRule) error { return tx.InsertTransactionRule(ctx, t) },
		update: func(ctx context.Context, tx ledger.Tx, t *ledger.TransactionRule) error { return tx.UpdateTransactionRule(ctx, t) },
	}
}

func ruleApplicationOps() groupOps[RuleApplicationRecord, ledger.RuleApplication] {
	return groupOps[RuleApplicationRecord, ledger.RuleApplication]{
		entity: ledger.EntityRuleApplication,
		hasKey: func(r *RuleApplicationRecord) bool { return r.ID != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *RuleApplicationRecord) (*ledger.RuleApplication, error) {
			return tx.GetRuleApplication(ctx, *r.ID)
		},
		apply: func(r *RuleApplicationRecord, a *ledger.RuleApplication) bool {
			var changed bool
			assign(&a.ID, r.ID, &changed)
			assign(&a.RuleID, r.RuleID, &changed)
			assign(&a.RuleName, r.RuleName, &changed)
			assign(&a.TransactionID, r.TransactionID, &changed)
			assign(&a.FieldsModified, r.FieldsModified, &changed)
			assign(&a.AppliedAt, r.AppliedAt, &changed)
			return changed
		},
		id:     func(a *ledger.RuleApplication) string { return a.ID },
		insert: func(ctx context.Context, tx ledger.Tx, a *ledger.RuleApplication) error { return tx.InsertRuleApplication(ctx, a) },
		update: func(ctx context.Context, tx ledger.Tx, a *ledger.RuleApplication) error { return tx.UpdateRuleApplication(ctx, a) },
	}
}

func exchangeRateOps() groupOps[ExchangeRateRecord, ledger.ExchangeRate] {
	return groupOps[ExchangeRateRecord, ledger.ExchangeRate]{
		entity: ledger.EntityExchangeRate,
		hasKey: func(r *ExchangeRateRecord) bool { return r.FromCurrency != nil && r.ToCurrency != nil },
		find: func(ctx context.Context, tx ledger.Tx, r *ExchangeRateRecord) (*ledger.ExchangeRate, error) {
			return tx.GetExchangeRate(ctx, *r.FromCurrency, *r.ToCurrency)
		},
		apply: func(r *ExchangeRateRecord, e *ledger.ExchangeRate) bool {
			var changed bool
			assign(&e.ID, r.ID, &changed)
			assign(&e.FromCurrency, r.FromCurrency, &changed)
			assign(&e.ToCurrency, r.ToCurrency, &changed)
			assign(&e.Rate, r.Rate, &changed)
			assign(&e.Provider, r.Provider, &changed)
			assign(&e.UpdatedAt, r.UpdatedAt, &changed)
			assign(&e.UpdatedAtUnix, r.UpdatedAtUnix, &changed)
			assign(&e.ExpiresAt, r.ExpiresAt, &changed)
			assign(&e.ExpiresAtUnix, r.ExpiresAtUnix, &changed)
			return changed
		},
		id:     func(e *ledger.ExchangeRate) string { return formatID(e.ID) },
		insert: func(ctx context.Context, tx ledger.Tx, e *ledger.ExchangeRate) error { return tx.InsertExchangeRate(ctx, e) },
		update: func(ctx context.Context, tx ledger.Tx, e *ledger.ExchangeRate) error { return tx.UpdateExchangeRate(ctx, e) },
	}
}
