// Package schema defines the closed set of destination column types a snapshot
// job can declare for its columns.
//
// A DestinationType is a pure value. Its Kind selects the variant; Precision
// and Scale are only meaningful for KindDecimal. The zero value is Text, so a
// column without an explicit mapping is treated as nullable text.
package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind enumerates the destination type variants.
type Kind int

const (
	KindText Kind = iota
	KindBigInteger
	KindInteger
	KindDecimal
	KindFloatingPoint
	KindBoolean
	KindDate
	KindDateTime
)

// DestinationType is a tagged variant over Kind.
type DestinationType struct {
	Kind      Kind
	Precision int
	Scale     int
}

var (
	Text          = DestinationType{Kind: KindText}
	BigInteger    = DestinationType{Kind: KindBigInteger}
	Integer       = DestinationType{Kind: KindInteger}
	FloatingPoint = DestinationType{Kind: KindFloatingPoint}
	Boolean       = DestinationType{Kind: KindBoolean}
	Date          = DestinationType{Kind: KindDate}
	DateTime      = DestinationType{Kind: KindDateTime}
)

// Decimal returns a fixed-point type with the given precision and scale.
func Decimal(precision, scale int) DestinationType {
	return DestinationType{Kind: KindDecimal, Precision: precision, Scale: scale}
}

// IsTemporal reports whether t is Date or DateTime.
func (t DestinationType) IsTemporal() bool {
	return t.Kind == KindDate || t.Kind == KindDateTime
}

// String renders the canonical spelling accepted by Parse.
func (t DestinationType) String() string {
	switch t.Kind {
	case KindText:
		return "text"
	case KindBigInteger:
		return "bigint"
	case KindInteger:
		return "int"
	case KindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", t.Precision, t.Scale)
	case KindFloatingPoint:
		return "float"
	case KindBoolean:
		return "bool"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	default:
		return fmt.Sprintf("kind(%d)", int(t.Kind))
	}
}

// Parse reads a type spelling as used in jobs files. It accepts the canonical
// names from String plus the SQL Server spellings used by the column maps of
// the built-in jobs (bit, nvarchar(n), nvarchar(max), datetime2, ...).
// Matching is case-insensitive.
//
//	"bigint"        -> BigInteger
//	"decimal(15,2)" -> Decimal(15, 2)
//	"nvarchar(255)" -> Text
func Parse(s string) (DestinationType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	args := ""
	if i := strings.IndexByte(name, '('); i >= 0 {
		if !strings.HasSuffix(name, ")") {
			return DestinationType{}, fmt.Errorf("schema: malformed type %q", s)
		}
		args = strings.TrimSpace(name[i+1 : len(name)-1])
		name = strings.TrimSpace(name[:i])
	}

	switch name {
	case "text", "string", "nvarchar", "varchar", "nchar", "char", "ntext":
		return Text, nil
	case "bigint", "int64", "long":
		return BigInteger, nil
	case "int", "integer", "int32", "smallint", "tinyint":
		return Integer, nil
	case "float", "double", "real", "float64":
		return FloatingPoint, nil
	case "bool", "boolean", "bit":
		return Boolean, nil
	case "date":
		return Date, nil
	case "datetime", "datetime2", "timestamp", "smalldatetime":
		return DateTime, nil
	case "decimal", "numeric":
		return parseDecimalArgs(s, args)
	case "":
		return DestinationType{}, fmt.Errorf("schema: empty type")
	default:
		return DestinationType{}, fmt.Errorf("schema: unknown type %q", s)
	}
}

// parseDecimalArgs reads "p,s" (or "p", or nothing) into a Decimal. Missing
// values default to SQL Server's decimal(18,0).
func parseDecimalArgs(orig, args string) (DestinationType, error) {
	if args == "" {
		return Decimal(18, 0), nil
	}
	parts := strings.Split(args, ",")
	if len(parts) > 2 {
		return DestinationType{}, fmt.Errorf("schema: malformed decimal %q", orig)
	}
	p, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || p <= 0 || p > 38 {
		return DestinationType{}, fmt.Errorf("schema: invalid decimal precision in %q", orig)
	}
	sc := 0
	if len(parts) == 2 {
		sc, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || sc < 0 || sc > p {
			return DestinationType{}, fmt.Errorf("schema: invalid decimal scale in %q", orig)
		}
	}
	return Decimal(p, sc), nil
}
