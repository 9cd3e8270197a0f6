package ledger_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pennywise/budget-engine/ledger"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestEffectDelta_Income_Positive(t *testing.T) {
	delta, ok := ledger.EffectDelta(ledger.TxTypeIncome, d("250.50"), false)
	assert.True(t, ok)
	assert.True(t, d("250.50").Equal(delta))
}

func TestEffectDelta_Expense_Negative(t *testing.T) {
	delta, ok := ledger.EffectDelta(ledger.TxTypeExpense, d("100"), false)
	assert.True(t, ok)
	assert.True(t, d("-100").Equal(delta))
}

func TestEffectDelta_Deleted_NoEffect(t *testing.T) {
	_, ok := ledger.EffectDelta(ledger.TxTypeIncome, d("100"), true)
	assert.False(t, ok)
}

func TestEffectDelta_ZeroAmount_NoEffect(t *testing.T) {
	_, ok := ledger.EffectDelta(ledger.TxTypeExpense, decimal.Zero, false)
	assert.False(t, ok)
}

func TestEffectDelta_OtherTypes_NoEffect(t *testing.T) {
	for _, typ := range []string{"TRANSFER", "INVESTMENT", ""} {
		_, ok := ledger.EffectDelta(typ, d("100"), false)
		assert.False(t, ok, "type %q should have no balance effect", typ)
	}
}

func TestReverse_IsExactNegation(t *testing.T) {
	assert.True(t, d("-42.42").Equal(ledger.Reverse(d("42.42"))))
	assert.True(t, d("42.42").Equal(ledger.Reverse(ledger.Reverse(d("42.42")))))
}

func TestFormatAmount_TwoDecimals(t *testing.T) {
	assert.Equal(t, "100.00", ledger.FormatAmount(d("100")))
	assert.Equal(t, "0.10", ledger.FormatAmount(d("0.1")))
	assert.Equal(t, "-12.35", ledger.FormatAmount(d("-12.345")))
}
