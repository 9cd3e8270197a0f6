/*
aux.go - Auxiliary collection persistence

One lookup-by-natural-key plus insert/update per snapshot collection. These
tables carry device data verbatim; the reconciliation engine owns all diff
logic, so nothing here interprets the fields.
*/
package sqlite

import (
	"context"
	"database/sql"

	"github.com/pennywise/budget-engine/ledger"
)

// =============================================================================
// CARDS
// =============================================================================

const cardColumns = `id, card_last4, card_type, bank_name, account_last4, nickname,
	is_active, last_balance, last_balance_source, last_balance_date,
	created_at, updated_at, currency`

func (t *tx) GetCard(ctx context.Context, id int64) (*ledger.Card, error) {
	var c ledger.Card
	err := t.q.QueryRowContext(ctx,
		"SELECT "+cardColumns+" FROM cards WHERE id = ?", id,
	).Scan(&c.ID, &c.CardLast4, &c.CardType, &c.BankName, &c.AccountLast4,
		&c.Nickname, &c.IsActive, &c.LastBalance, &c.LastBalanceSource,
		&c.LastBalanceDate, &c.CreatedAt, &c.UpdatedAt, &c.Currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (t *tx) InsertCard(ctx context.Context, c *ledger.Card) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO cards (id, card_last4, card_type, bank_name, account_last4, nickname,
			is_active, last_balance, last_balance_source, last_balance_date,
			created_at, updated_at, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(c.ID), c.CardLast4, c.CardType, c.BankName, c.AccountLast4, c.Nickname,
		c.IsActive, c.LastBalance, c.LastBalanceSource, c.LastBalanceDate,
		c.CreatedAt, c.UpdatedAt, c.Currency)
	if err != nil {
		return err
	}
	if c.ID == 0 {
		c.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateCard(ctx context.Context, c *ledger.Card) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE cards SET card_last4 = ?, card_type = ?, bank_name = ?, account_last4 = ?,
			nickname = ?, is_active = ?, last_balance = ?, last_balance_source = ?,
			last_balance_date = ?, created_at = ?, updated_at = ?, currency = ?
		WHERE id = ?`,
		c.CardLast4, c.CardType, c.BankName, c.AccountLast4, c.Nickname, c.IsActive,
		c.LastBalance, c.LastBalanceSource, c.LastBalanceDate,
		c.CreatedAt, c.UpdatedAt, c.Currency, c.ID)
	return err
}

// =============================================================================
// ACCOUNT BALANCES
// =============================================================================

const accountBalanceColumns = `id, bank_name, account_last4, balance, timestamp, transaction_id,
	credit_limit, is_credit_card, sms_source, source_type, created_at, currency`

func (t *tx) GetAccountBalance(ctx context.Context, bankName, accountLast4, timestamp string) (*ledger.AccountBalance, error) {
	var a ledger.AccountBalance
	err := t.q.QueryRowContext(ctx,
		"SELECT "+accountBalanceColumns+" FROM account_balances WHERE bank_name = ? AND account_last4 = ? AND timestamp = ?",
		bankName, accountLast4, timestamp,
	).Scan(&a.ID, &a.BankName, &a.AccountLast4, &a.Balance, &a.Timestamp,
		&a.TransactionID, &a.CreditLimit, &a.IsCreditCard, &a.SmsSource,
		&a.SourceType, &a.CreatedAt, &a.Currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) InsertAccountBalance(ctx context.Context, a *ledger.AccountBalance) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO account_balances (id, bank_name, account_last4, balance, timestamp,
			transaction_id, credit_limit, is_credit_card, sms_source, source_type,
			created_at, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(a.ID), a.BankName, a.AccountLast4, a.Balance, a.Timestamp,
		a.TransactionID, a.CreditLimit, a.IsCreditCard, a.SmsSource, a.SourceType,
		a.CreatedAt, a.Currency)
	if err != nil {
		return err
	}
	if a.ID == 0 {
		a.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateAccountBalance(ctx context.Context, a *ledger.AccountBalance) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE account_balances SET bank_name = ?, account_last4 = ?, balance = ?,
			timestamp = ?, transaction_id = ?, credit_limit = ?, is_credit_card = ?,
			sms_source = ?, source_type = ?, created_at = ?, currency = ?
		WHERE id = ?`,
		a.BankName, a.AccountLast4, a.Balance, a.Timestamp, a.TransactionID,
		a.CreditLimit, a.IsCreditCard, a.SmsSource, a.SourceType,
		a.CreatedAt, a.Currency, a.ID)
	return err
}

// =============================================================================
// SUBSCRIPTIONS
// =============================================================================

const subscriptionColumns = `id, merchant_name, amount, next_payment_date, state, bank_name,
	umn, category, sms_body, created_at, updated_at, currency`

func (t *tx) GetSubscription(ctx context.Context, id int64) (*ledger.Subscription, error) {
	var s ledger.Subscription
	err := t.q.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id,
	).Scan(&s.ID, &s.MerchantName, &s.Amount, &s.NextPaymentDate, &s.State,
		&s.BankName, &s.Umn, &s.Category, &s.SmsBody,
		&s.CreatedAt, &s.UpdatedAt, &s.Currency)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *tx) InsertSubscription(ctx context.Context, s *ledger.Subscription) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO subscriptions (id, merchant_name, amount, next_payment_date, state,
			bank_name, umn, category, sms_body, created_at, updated_at, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(s.ID), s.MerchantName, s.Amount, s.NextPaymentDate, s.State,
		s.BankName, s.Umn, s.Category, s.SmsBody, s.CreatedAt, s.UpdatedAt, s.Currency)
	if err != nil {
		return err
	}
	if s.ID == 0 {
		s.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateSubscription(ctx context.Context, s *ledger.Subscription) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE subscriptions SET merchant_name = ?, amount = ?, next_payment_date = ?,
			state = ?, bank_name = ?, umn = ?, category = ?, sms_body = ?,
			created_at = ?, updated_at = ?, currency = ?
		WHERE id = ?`,
		s.MerchantName, s.Amount, s.NextPaymentDate, s.State, s.BankName, s.Umn,
		s.Category, s.SmsBody, s.CreatedAt, s.UpdatedAt, s.Currency, s.ID)
	return err
}

// =============================================================================
// MERCHANT MAPPINGS
// =============================================================================

func (t *tx) GetMerchantMapping(ctx context.Context, merchantName string) (*ledger.MerchantMapping, error) {
	var m ledger.MerchantMapping
	err := t.q.QueryRowContext(ctx,
		"SELECT merchant_name, category, created_at, updated_at FROM merchant_mappings WHERE merchant_name = ?",
		merchantName,
	).Scan(&m.MerchantName, &m.Category, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *tx) InsertMerchantMapping(ctx context.Context, m *ledger.MerchantMapping) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO merchant_mappings (merchant_name, category, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		m.MerchantName, m.Category, m.CreatedAt, m.UpdatedAt)
	return err
}

func (t *tx) UpdateMerchantMapping(ctx context.Context, m *ledger.MerchantMapping) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE merchant_mappings SET category = ?, created_at = ?, updated_at = ?
		WHERE merchant_name = ?`,
		m.Category, m.CreatedAt, m.UpdatedAt, m.MerchantName)
	return err
}

// =============================================================================
// UNRECOGNIZED MESSAGES
// =============================================================================

func (t *tx) GetUnrecognizedMessage(ctx context.Context, sender, body string) (*ledger.UnrecognizedMessage, error) {
	var u ledger.UnrecognizedMessage
	err := t.q.QueryRowContext(ctx, `
		SELECT id, sender, sms_body, received_at, reported, is_deleted, created_at
		FROM unrecognized_messages WHERE sender = ? AND sms_body = ?`,
		sender, body,
	).Scan(&u.ID, &u.Sender, &u.Body, &u.ReceivedAt, &u.Reported, &u.IsDeleted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (t *tx) InsertUnrecognizedMessage(ctx context.Context, u *ledger.UnrecognizedMessage) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO unrecognized_messages (id, sender, sms_body, received_at, reported, is_deleted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullID(u.ID), u.Sender, u.Body, u.ReceivedAt, u.Reported, u.IsDeleted, u.CreatedAt)
	if err != nil {
		return err
	}
	if u.ID == 0 {
		u.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateUnrecognizedMessage(ctx context.Context, u *ledger.UnrecognizedMessage) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE unrecognized_messages SET sender = ?, sms_body = ?, received_at = ?,
			reported = ?, is_deleted = ?, created_at = ?
		WHERE id = ?`,
		u.Sender, u.Body, u.ReceivedAt, u.Reported, u.IsDeleted, u.CreatedAt, u.ID)
	return err
}

// =============================================================================
// CHAT MESSAGES
// =============================================================================

func (t *tx) GetChatMessage(ctx context.Context, id string) (*ledger.ChatMessage, error) {
	var m ledger.ChatMessage
	err := t.q.QueryRowContext(ctx, `
		SELECT id, message, is_user, timestamp, is_system_prompt
		FROM chat_messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.Message, &m.IsUser, &m.Timestamp, &m.IsSystemPrompt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *tx) InsertChatMessage(ctx context.Context, m *ledger.ChatMessage) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO chat_messages (id, message, is_user, timestamp, is_system_prompt)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Message, m.IsUser, m.Timestamp, m.IsSystemPrompt)
	return err
}

func (t *tx) UpdateChatMessage(ctx context.Context, m *ledger.ChatMessage) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE chat_messages SET message = ?, is_user = ?, timestamp = ?, is_system_prompt = ?
		WHERE id = ?`,
		m.Message, m.IsUser, m.Timestamp, m.IsSystemPrompt, m.ID)
	return err
}

// =============================================================================
// TRANSACTION RULES
// =============================================================================

func (t *tx) GetTransactionRule(ctx context.Context, id string) (*ledger.TransactionRule, error) {
	var r ledger.TransactionRule
	err := t.q.QueryRowContext(ctx, `
		SELECT id, name, description, priority, conditions, actions, is_active,
			is_system_template, created_at, updated_at
		FROM transaction_rules WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.Conditions, &r.Actions,
		&r.IsActive, &r.IsSystemTemplate, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *tx) InsertTransactionRule(ctx context.Context, r *ledger.TransactionRule) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transaction_rules (id, name, description, priority, conditions, actions,
			is_active, is_system_template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.Priority, r.Conditions, r.Actions,
		r.IsActive, r.IsSystemTemplate, r.CreatedAt, r.UpdatedAt)
	return err
}

func (t *tx) UpdateTransactionRule(ctx context.Context, r *ledger.TransactionRule) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE transaction_rules SET name = ?, description = ?, priority = ?,
			conditions = ?, actions = ?, is_active = ?, is_system_template = ?,
			created_at = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, r.Description, r.Priority, r.Conditions, r.Actions,
		r.IsActive, r.IsSystemTemplate, r.CreatedAt, r.UpdatedAt, r.ID)
	return err
}

// =============================================================================
// RULE APPLICATIONS
// =============================================================================

func (t *tx) GetRuleApplication(ctx context.Context, id string) (*ledger.RuleApplication, error) {
	var a ledger.RuleApplication
	err := t.q.QueryRowContext(ctx, `
		SELECT id, rule_id, rule_name, transaction_id, fields_modified, applied_at
		FROM rule_applications WHERE id = ?`, id,
	).Scan(&a.ID, &a.RuleID, &a.RuleName, &a.TransactionID, &a.FieldsModified, &a.AppliedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *tx) InsertRuleApplication(ctx context.Context, a *ledger.RuleApplication) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO rule_applications (id, rule_id, rule_name, transaction_id, fields_modified, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.RuleID, a.RuleName, a.TransactionID, a.FieldsModified, a.AppliedAt)
	return err
}

func (t *tx) UpdateRuleApplication(ctx context.Context, a *ledger.RuleApplication) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE rule_applications SET rule_id = ?, rule_name = ?, transaction_id = ?,
			fields_modified = ?, applied_at = ?
		WHERE id = ?`,
		a.RuleID, a.RuleName, a.TransactionID, a.FieldsModified, a.AppliedAt, a.ID)
	return err
}

// =============================================================================
// EXCHANGE RATES
// =============================================================================

func (t *tx) GetExchangeRate(ctx context.Context, fromCurrency, toCurrency string) (*ledger.ExchangeRate, error) {
	var e ledger.ExchangeRate
	err := t.q.QueryRowContext(ctx, `
		SELECT id, from_currency, to_currency, rate, provider, updated_at,
			updated_at_unix, expires_at, expires_at_unix
		FROM exchange_rates WHERE from_currency = ? AND to_currency = ?`,
		fromCurrency, toCurrency,
	).Scan(&e.ID, &e.FromCurrency, &e.ToCurrency, &e.Rate, &e.Provider,
		&e.UpdatedAt, &e.UpdatedAtUnix, &e.ExpiresAt, &e.ExpiresAtUnix)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (t *tx) InsertExchangeRate(ctx context.Context, e *ledger.ExchangeRate) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO exchange_rates (id, from_currency, to_currency, rate, provider,
			updated_at, updated_at_unix, expires_at, expires_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullID(e.ID), e.FromCurrency, e.ToCurrency, e.Rate, e.Provider,
		e.UpdatedAt, e.UpdatedAtUnix, e.ExpiresAt, e.ExpiresAtUnix)
	if err != nil {
		return err
	}
	if e.ID == 0 {
		e.ID, err = res.LastInsertId()
	}
	return err
}

func (t *tx) UpdateExchangeRate(ctx context.Context, e *ledger.ExchangeRate) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE exchange_rates SET from_currency = ?, to_currency = ?, rate = ?,
			provider = ?, updated_at = ?, updated_at_unix = ?, expires_at = ?,
			expires_at_unix = ?
		WHERE id = ?`,
		e.FromCurrency, e.ToCurrency, e.Rate, e.Provider, e.UpdatedAt,
		e.UpdatedAtUnix, e.ExpiresAt, e.ExpiresAtUnix, e.ID)
	return err
}
