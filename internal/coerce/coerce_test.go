package coerce

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInt64AcceptsMixedRepresentations(t *testing.T) {
	cases := []struct {
		in   any
		want int64
		ok   bool
	}{
		{in: "2024", want: 2024, ok: true},
		{in: 2024, want: 2024, ok: true},
		{in: float64(2024), want: 2024, ok: true},
		{in: json.Number("17"), want: 17, ok: true},
		{in: " 08 ", want: 8, ok: true},
		{in: "09", want: 9, ok: true},
		{in: "3.5", ok: false},
		{in: "", ok: false},
		{in: nil, ok: false},
		{in: true, ok: false},
		{in: "abc", ok: false},
	}
	for _, tc := range cases {
		got, ok := Int64(tc.in)
		assert.Equal(t, tc.ok, ok, "input %#v", tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, "input %#v", tc.in)
		}
	}
}

func TestFloatHandlesDecimalComma(t *testing.T) {
	f, ok := Float("12,50")
	assert.True(t, ok)
	assert.InDelta(t, 12.5, f, 1e-9)

	f, ok = Float("1234.75")
	assert.True(t, ok)
	assert.InDelta(t, 1234.75, f, 1e-9)

	assert.Equal(t, 0.0, FloatOr("n/a"))
}

func TestEqualCoercesBeforeComparing(t *testing.T) {
	assert.True(t, Equal("2024", 2024))
	assert.True(t, Equal(float64(3), "03"))
	assert.True(t, Equal("abc", " abc "))
	assert.False(t, Equal("2024", 2023))
	assert.False(t, Equal("", nil))
}

func TestStringDropsWholeFloatDecimals(t *testing.T) {
	assert.Equal(t, "2024", String(float64(2024)))
	assert.Equal(t, "x", String(" x "))
	assert.Equal(t, "", String(nil))
}
