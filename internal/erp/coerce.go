package erp

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Text trims a nullable column; empty becomes "".
func Text(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return strings.TrimSpace(v.String)
}

// Optional trims a nullable column; NULL or blank becomes nil.
func Optional(v sql.NullString) *string {
	s := Text(v)
	if s == "" {
		return nil
	}
	return &s
}

// Stock floors the value and clamps it at 0. Unparseable input counts as 0.
func Stock(v any) int {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || f <= 0 {
		return 0
	}
	f = math.Floor(f)
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// Price parses numeric or textual prices ("12.50", "12,50", "1.234,56", "1,234.56");
// anything else is nil.
func Price(v any) *float64 {
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case int:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case []byte:
		return parseNumber(string(x))
	case string:
		return parseNumber(x)
	case fmt.Stringer:
		return parseNumber(x.String())
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	comma, dot := strings.LastIndex(s, ","), strings.LastIndex(s, ".")
	switch {
	case comma >= 0 && dot >= 0:
		// the separator that comes last is the decimal one: 1.234,56 or 1,234.56
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case comma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case strings.Count(s, ".") > 1:
		s = strings.ReplaceAll(s, ".", "")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
