package ledger

import "github.com/shopspring/decimal"

// EffectDelta converts a transaction's stored (unsigned) amount and type into
// the signed delta it applies to its category's bucket. The second return is
// false when the transaction has no balance effect at all (non-budgeting
// type, zero amount, or soft-deleted).
//
// Update handling composes this with Reverse: the net effect of revising a
// transaction is Reverse(EffectDelta(old)) followed by EffectDelta(new).
func EffectDelta(txType string, amount decimal.Decimal, deleted bool) (decimal.Decimal, bool) {
	if deleted || amount.IsZero() {
		return decimal.Zero, false
	}
	switch txType {
	case TxTypeIncome:
		return amount, true
	case TxTypeExpense:
		return amount.Neg(), true
	default:
		return decimal.Zero, false
	}
}

// Reverse returns the exact negation of a previously applied delta.
func Reverse(delta decimal.Decimal) decimal.Decimal {
	return delta.Neg()
}

// FormatAmount renders an amount the way user-facing messages expect it:
// two decimal places, no thousands separators.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// MustParseDecimal parses s, returning zero on malformed input. Stored
// amounts are written by this process and are always well-formed; this keeps
// scan paths free of error plumbing the same way the rest of the store
// tolerates corrupt rows.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
