package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromMajor(t *testing.T) {
	tests := []struct {
		name     string
		major    float64
		currency Currency
		minor    int64
	}{
		{"dollars to cents", 100.00, USD, 10000},
		{"rounds down", 10.004, USD, 1000},
		{"rounds up", 10.006, USD, 1001},
		{"pence", 0.01, GBP, 1},
		{"yen has no minor units", 500, JPY, 500},
		{"unknown currency defaults to 2 places", 1.23, Currency("XXX"), 123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewFromMajor(tt.major, tt.currency)
			assert.Equal(t, tt.minor, m.AmountMinor)
			assert.Equal(t, tt.currency, m.Currency)
		})
	}
}

func TestToMajorRoundTrip(t *testing.T) {
	m := NewFromMajor(42.42, EUR)
	assert.InDelta(t, 42.42, m.ToMajor(), 1e-9)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(USD))
	assert.False(t, Known(Currency("XTS")))
}

func TestCodes(t *testing.T) {
	codes := Codes()
	assert.Len(t, codes, 4)
	assert.Contains(t, codes, "USD")
}

func TestMoneyJSON(t *testing.T) {
	m := New(1050, GBP)

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount_minor":1050,"currency":"GBP"}`, string(data))

	var decoded Money
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, m.Equal(decoded))
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "$10.50", New(1050, USD).String())
	assert.Equal(t, "¥500", New(500, JPY).String())
}

func TestPredicates(t *testing.T) {
	assert.True(t, New(0, USD).IsZero())
	assert.True(t, New(1, USD).IsPositive())
	assert.False(t, New(-1, USD).IsPositive())
}
