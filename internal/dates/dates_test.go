package dates

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEquivalentEncodings(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	inputs := []any{
		"2024-03-15",
		"15/03/2024",
		"20240315",
		"15032024",
		"2024/03/15",
		"15-03-2024",
		"2024-03-15T10:30:00Z",
		"2024-03-15 10:30:00",
		20240315,
		json.Number("20240315"),
		want,
	}
	for _, in := range inputs {
		res := Parse(in)
		require.True(t, res.Valid, "input %#v: %s", in, res.Reason)
		assert.Equal(t, want, res.Day(), "input %#v", in)
	}
}

func TestParseRejectsInvalidInput(t *testing.T) {
	cases := map[string]struct {
		in     any
		reason string
	}{
		"month 13":      {in: "31/13/2024", reason: ReasonInvalidDate},
		"text":          {in: "not-a-date", reason: ReasonUnrecognized},
		"empty":         {in: "  ", reason: ReasonEmpty},
		"nil":           {in: nil, reason: ReasonEmpty},
		"february 30":   {in: "30/02/2024", reason: ReasonInvalidDate},
		"year too old":  {in: "1850-01-01", reason: ReasonOutOfRange},
		"year too late": {in: "01/01/2200", reason: ReasonOutOfRange},
		"unknown type":  {in: []int{1}, reason: ReasonUnrecognized},
		"nil time ptr":  {in: (*time.Time)(nil), reason: ReasonEmpty},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			res := Parse(tc.in)
			assert.False(t, res.Valid)
			assert.Equal(t, tc.reason, res.Reason)
			assert.True(t, res.Day().IsZero())
			assert.Equal(t, "", res.YearMonth())
		})
	}
}

func TestParseEpochMagnitude(t *testing.T) {
	seconds := Parse(int64(1710460800))
	require.True(t, seconds.Valid)
	assert.Equal(t, LayoutEpochS, seconds.Layout)
	assert.Equal(t, "2024-03-15", seconds.Day().Format("2006-01-02"))

	millis := Parse(float64(1710460800000))
	require.True(t, millis.Valid)
	assert.Equal(t, LayoutEpochMS, millis.Layout)
	assert.Equal(t, seconds.Time, millis.Time)

	str := Parse("1710460800000")
	require.True(t, str.Valid)
	assert.Equal(t, seconds.Time, str.Time)
}

func TestParseCompactDisambiguation(t *testing.T) {
	// Leading segment 2012 looks like a year but 20/19 is not a month/day,
	// so the trailing segment wins.
	res := Parse("20122019")
	require.True(t, res.Valid)
	assert.Equal(t, LayoutCompactD, res.Layout)
	assert.Equal(t, "2019-12-20", res.Day().Format("2006-01-02"))

	res = Parse("20240102")
	require.True(t, res.Valid)
	assert.Equal(t, LayoutCompact, res.Layout)
	assert.Equal(t, "2024-01", res.YearMonth())
}

func TestParseTime(t *testing.T) {
	ts, ok := ParseTime("2023-12-31")
	assert.True(t, ok)
	assert.Equal(t, 2023, ts.Year())

	_, ok = ParseTime("garbage")
	assert.False(t, ok)
}

func TestParseKeepsWrittenDayForOffsets(t *testing.T) {
	res := Parse("2024-04-01T00:30:00+02:00")
	require.True(t, res.Valid)
	assert.Equal(t, "2024-04-01", res.Day().Format("2006-01-02"))
	assert.Equal(t, "2024-04", res.YearMonth())

	res = Parse("2024-03-31T23:30:00-05:00")
	require.True(t, res.Valid)
	assert.Equal(t, "2024-03", res.YearMonth())

	local := time.Date(2024, 4, 1, 0, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	assert.Equal(t, "2024-04-01", Parse(local).Day().Format("2006-01-02"))
}

func TestParseEightDigitStringMatchesNumber(t *testing.T) {
	for _, n := range []int64{99999999, 12345678, 20241341, 20240315, 15032024} {
		fromString := Parse(strconv.FormatInt(n, 10))
		fromNumber := Parse(n)
		assert.Equal(t, fromNumber.Valid, fromString.Valid, "%d", n)
		assert.Equal(t, fromNumber.Layout, fromString.Layout, "%d", n)
		assert.True(t, fromNumber.Time.Equal(fromString.Time), "%d", n)
	}

	res := Parse("99999999")
	require.True(t, res.Valid)
	assert.Equal(t, LayoutEpochS, res.Layout)
}
