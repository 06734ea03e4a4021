// Package transformer turns raw Athena cells into values typed for their
// destination column.
package transformer

import (
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rlscode/athena-snapshop/internal/schema"
)

// PlaceholderDate is the sentinel the source systems use for "no date".
const PlaceholderDate = "1/1/1900"

// dateLayouts are tried in order after the first space of a timestamp has been
// replaced by 'T'. Fractional seconds are optional in the layouts that carry
// them.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"1/2/2006",
}

// Coercer converts raw cells for one load. Location is used for timestamps
// without an explicit offset; nil means time.Local.
type Coercer struct {
	Location *time.Location
}

// Coerce converts raw using time.Local for zone-less timestamps.
func Coerce(raw any, column string, t schema.DestinationType) any {
	return Coercer{}.Coerce(raw, column, t)
}

// Coerce converts raw into the Go value for a column of type t. It never
// panics and never fails: values that cannot be converted become nil.
//
//	Date/DateTime  -> time.Time
//	BigInteger/Int -> int64
//	FloatingPoint  -> float64
//	Boolean        -> bool
//	Text/Decimal   -> raw, unchanged
func (c Coercer) Coerce(raw any, column string, t schema.DestinationType) any {
	if p, ok := raw.(*string); ok {
		if p == nil {
			return nil
		}
		raw = *p
	}
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok && (s == "" || s == PlaceholderDate) {
		return nil
	}

	switch t.Kind {
	case schema.KindDate, schema.KindDateTime:
		s, ok := raw.(string)
		if !ok {
			if tm, ok := raw.(time.Time); ok {
				return c.truncate(tm, t)
			}
			return raw
		}
		tm, ok := c.parseTime(s)
		if !ok {
			log.WithField("column", column).Warnf("coerce: invalid date %q", s)
			return nil
		}
		return c.truncate(tm, t)

	case schema.KindBoolean:
		return toBool(raw)

	case schema.KindBigInteger:
		if n, ok := toInt(raw); ok {
			return n
		}
		return nil

	case schema.KindInteger:
		if n, ok := toInt(raw); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return n
		}
		return nil

	case schema.KindFloatingPoint:
		if f, ok := toFloat(raw); ok {
			return f
		}
		return nil

	case schema.KindText, schema.KindDecimal:
		return raw

	default:
		return raw
	}
}

func (c Coercer) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

// parseTime normalises "2024-07-26 19:56:31.000000" to
// "2024-07-26T19:56:31.000000" and tries each known layout.
func (c Coercer) parseTime(s string) (time.Time, bool) {
	s = strings.Replace(strings.TrimSpace(s), " ", "T", 1)
	for _, layout := range dateLayouts {
		if tm, err := time.ParseInLocation(layout, s, c.location()); err == nil {
			return tm, true
		}
	}
	return time.Time{}, false
}

func (c Coercer) truncate(tm time.Time, t schema.DestinationType) time.Time {
	if t.Kind != schema.KindDate {
		return tm
	}
	y, m, d := tm.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, tm.Location())
}

func toBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		}
		return false
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0 && !math.IsNaN(v)
	default:
		return true
	}
}

// toInt parses integers; decimal text is truncated toward zero.
func toInt(raw any) (int64, bool) {
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return floatToInt(v)
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, ok := parseFinite(s); ok {
			return floatToInt(f)
		}
	}
	return 0, false
}

func floatToInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		return parseFinite(strings.TrimSpace(v))
	}
	return 0, false
}

// parseFinite rejects NaN and ±Inf, which ParseFloat would otherwise accept.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
