// Package dates turns the assorted date encodings found in ERP exports into
// calendar dates. Parsing never fails loudly: the outcome is a Result that
// is either valid or carries the reason it was rejected, so callers can count
// what they drop.
package dates

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Accepted year window. Anything outside is treated as garbage.
const (
	MinYear = 1900
	MaxYear = 2100
)

// Rejection reasons reported on invalid results.
const (
	ReasonEmpty        = "empty"
	ReasonUnrecognized = "unrecognized"
	ReasonInvalidDate  = "invalid_date"
	ReasonOutOfRange   = "out_of_range"
	ReasonPanic        = "panic"
)

// Layout names reported on valid results.
const (
	LayoutISO      = "iso"
	LayoutDMY      = "dd/mm/yyyy"
	LayoutYMD      = "yyyy/mm/dd"
	LayoutCompact  = "yyyymmdd"
	LayoutCompactD = "ddmmyyyy"
	LayoutEpochS   = "epoch_s"
	LayoutEpochMS  = "epoch_ms"
	LayoutTime     = "time"
)

// epochMillisThreshold separates epoch seconds from milliseconds. 1e11
// seconds is beyond year 5000, 1e11 milliseconds is early 1973.
const epochMillisThreshold = 1e11

// Result is the tagged outcome of Parse.
type Result struct {
	Time   time.Time `json:"time"`
	Valid  bool      `json:"valid"`
	Layout string    `json:"layout,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Day returns the calendar day at UTC midnight.
func (r Result) Day() time.Time {
	if !r.Valid {
		return time.Time{}
	}
	t := r.Time.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// YearMonth formats the date as YYYY-MM, or "" when invalid.
func (r Result) YearMonth() string {
	if !r.Valid {
		return ""
	}
	return r.Time.UTC().Format("2006-01")
}

var (
	digitsOnly = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	dmyPattern = regexp.MustCompile(`^(\d{1,2})[/.-](\d{1,2})[/.-](\d{4})(?:[ T]\d{1,2}:\d{2}(?::\d{2})?)?$`)
	ymdPattern = regexp.MustCompile(`^(\d{4})[/.-](\d{1,2})[/.-](\d{1,2})(?:[ T]\d{1,2}:\d{2}(?::\d{2})?)?$`)
)

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Parse normalises input into a calendar date. Supported inputs are ISO
// date/time strings, DD/MM/YYYY, YYYY/MM/DD, 8-digit YYYYMMDD or DDMMYYYY,
// epoch seconds or milliseconds (as numbers or numeric strings) and
// time.Time values.
func Parse(input any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = invalid(ReasonPanic)
		}
	}()

	switch v := input.(type) {
	case nil:
		return invalid(ReasonEmpty)
	case time.Time:
		return fromTime(v, LayoutTime)
	case *time.Time:
		if v == nil {
			return invalid(ReasonEmpty)
		}
		return fromTime(*v, LayoutTime)
	case string:
		return parseString(v)
	case json.Number:
		return parseString(v.String())
	case float64:
		return parseNumber(v)
	case float32:
		return parseNumber(float64(v))
	case int:
		return parseNumber(float64(v))
	case int32:
		return parseNumber(float64(v))
	case int64:
		return parseNumber(float64(v))
	case uint32:
		return parseNumber(float64(v))
	case uint64:
		return parseNumber(float64(v))
	default:
		return invalid(ReasonUnrecognized)
	}
}

// ParseTime is Parse reduced to (time, ok).
func ParseTime(input any) (time.Time, bool) {
	r := Parse(input)
	return r.Time, r.Valid
}

func parseString(raw string) Result {
	s := strings.TrimSpace(raw)
	if s == "" {
		return invalid(ReasonEmpty)
	}
	if digitsOnly.MatchString(s) {
		if len(s) == 8 && !strings.ContainsAny(s, ".-") {
			if r := parseCompact(s); r.Valid {
				return r
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return invalid(ReasonUnrecognized)
		}
		return parseEpoch(f)
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return fromTime(t, LayoutISO)
		}
	}
	if m := dmyPattern.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[3]), atoi(m[2]), atoi(m[1]), LayoutDMY)
	}
	if m := ymdPattern.FindStringSubmatch(s); m != nil {
		return civil(atoi(m[1]), atoi(m[2]), atoi(m[3]), LayoutYMD)
	}
	return invalid(ReasonUnrecognized)
}

// parseNumber treats whole 8-digit values as compact dates and everything
// else as an epoch timestamp.
func parseNumber(f float64) Result {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return invalid(ReasonUnrecognized)
	}
	if f == math.Trunc(f) && f >= 10000000 && f <= 99999999 {
		if r := parseCompact(strconv.FormatInt(int64(f), 10)); r.Valid {
			return r
		}
	}
	return parseEpoch(f)
}

// parseCompact resolves an 8-digit string. YYYYMMDD wins when the leading
// four digits look like a year; DDMMYYYY is tried when the trailing four do.
func parseCompact(s string) Result {
	head, tail := atoi(s[:4]), atoi(s[4:])
	res := invalid(ReasonUnrecognized)
	if inYearRange(head) {
		res = civil(head, atoi(s[4:6]), atoi(s[6:8]), LayoutCompact)
		if res.Valid {
			return res
		}
	}
	if inYearRange(tail) {
		return civil(tail, atoi(s[2:4]), atoi(s[:2]), LayoutCompactD)
	}
	if res.Reason == ReasonUnrecognized {
		res.Reason = ReasonOutOfRange
	}
	return res
}

func parseEpoch(f float64) Result {
	layout := LayoutEpochS
	var t time.Time
	if math.Abs(f) >= epochMillisThreshold {
		layout = LayoutEpochMS
		t = time.UnixMilli(int64(f)).UTC()
	} else {
		sec, frac := math.Modf(f)
		t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	return fromTime(t, layout)
}

func civil(year, month, day int, layout string) Result {
	if !inYearRange(year) {
		return invalid(ReasonOutOfRange)
	}
	if month < 1 || month > 12 || day < 1 {
		return invalid(ReasonInvalidDate)
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(month) || t.Day() != day {
		return invalid(ReasonInvalidDate)
	}
	return Result{Time: t, Valid: true, Layout: layout}
}

func fromTime(t time.Time, layout string) Result {
	if t.IsZero() {
		return invalid(ReasonEmpty)
	}
	// The written wall clock is kept so an offset never moves the calendar day.
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
	if !inYearRange(t.Year()) {
		return invalid(ReasonOutOfRange)
	}
	return Result{Time: t, Valid: true, Layout: layout}
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

func inYearRange(y int) bool {
	return y >= MinYear && y <= MaxYear
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
