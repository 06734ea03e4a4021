package storage

import (
	"strconv"
	"strings"
	"time"

	"github.com/rlscode/athena-snapshop/internal/schema"
)

// Layouts used when a typed value lands in a textual column.
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04:05.000"
)

// IsTextual reports whether a catalogue data type holds character data.
func IsTextual(dataType string) bool {
	dt := strings.ToLower(dataType)
	return strings.Contains(dt, "char") || strings.Contains(dt, "text") || strings.Contains(dt, "clob")
}

// AdaptValue shapes a coerced value for its destination column. Columns the
// reconciler created are text even when the job declares a richer type, so
// typed values bound for textual columns are rendered as strings. Dates bound
// for date columns are pinned to UTC midnight of their calendar day so
// drivers that encode in UTC keep the same day.
func AdaptValue(v any, col LoadColumn) any {
	if v == nil {
		return nil
	}
	if IsTextual(col.DataType) {
		return FormatText(v, col.Type)
	}
	if tm, ok := v.(time.Time); ok && col.Type.Kind == schema.KindDate {
		return CalendarDay(tm)
	}
	return v
}

// FormatText renders v as text; t decides whether a time.Time is a date or a
// timestamp.
func FormatText(v any, t schema.DestinationType) any {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		if t.Kind == schema.KindDate {
			return x.Format(DateLayout)
		}
		return x.Format(DateTimeLayout)
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return v
	}
}

// CalendarDay returns midnight UTC of tm's calendar day in tm's location.
func CalendarDay(tm time.Time) time.Time {
	y, m, d := tm.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
