// Package serialize lowers pgx row values into the JSON-safe cell lattice:
// null, bool, float64-safe numbers, and strings. Values that JSON cannot
// carry exactly (NUMERIC, wide integers, timestamps, uuid, bytea) become
// strings with a documented format so no client ever sees a rounded number
// or a locale-dependent date.
package serialize

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/netip"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// maxSafeInt is the largest integer JSON numbers represent exactly.
const maxSafeInt = int64(1)<<53 - 1

// ColumnDesc identifies one result column by name and Postgres type OID.
type ColumnDesc struct {
	Name string
	OID  uint32
}

// Meta is the per-column serialization report built while serializing.
type Meta struct {
	Name         string
	DBType       *string
	GoType       string // Go type of the first non-null value, "" if all null
	Nullable     bool   // a null was observed in this result
	SerializedAs string // "null" until a non-null value fixes it
}

var typeMap = pgtype.NewMap()

// Rows serializes every cell of rows in place order, returning the
// serialized grid and one Meta per column.
func Rows(descs []ColumnDesc, rows [][]any) ([][]any, []Meta) {
	metas := make([]Meta, len(descs))
	for i, d := range descs {
		metas[i] = Meta{Name: d.Name, SerializedAs: "null"}
		if name, ok := typeMap.TypeForOID(d.OID); ok {
			n := name.Name
			metas[i].DBType = &n
		}
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		cells := make([]any, len(row))
		for c, v := range row {
			if c >= len(descs) {
				cells[c] = nil
				continue
			}
			cell, kind := Cell(v, descs[c].OID)
			cells[c] = cell
			if v == nil {
				metas[c].Nullable = true
			} else {
				if metas[c].GoType == "" {
					metas[c].GoType = fmt.Sprintf("%T", v)
				}
				if metas[c].SerializedAs == "null" {
					metas[c].SerializedAs = kind
				}
			}
		}
		out[r] = cells
	}
	return out, metas
}

// Cell serializes a single scanned value. The second return names the
// lattice shape used: "null", "bool", "number", or "string".
func Cell(v any, oid uint32) (any, string) {
	switch x := v.(type) {
	case nil:
		return nil, "null"
	case bool:
		return x, "bool"
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprintf("%v", x), "string"
		}
		return x, "number"
	case float32:
		return Cell(float64(x), oid)
	case int16:
		return int64(x), "number"
	case int32:
		return int64(x), "number"
	case int64:
		if x > maxSafeInt || x < -maxSafeInt {
			return fmt.Sprintf("%d", x), "string"
		}
		return x, "number"
	case uint32:
		return int64(x), "number"
	case string:
		return x, "string"
	case []byte:
		// json/jsonb scan as []byte; pass the document through untouched
		if oid == pgtype.JSONOID || oid == pgtype.JSONBOID {
			return json.RawMessage(x), "json"
		}
		return `\x` + hex.EncodeToString(x), "string"
	case time.Time:
		return formatTime(x, oid), "string"
	case pgtype.Numeric:
		return numericString(x), "string"
	case [16]byte:
		return uuid.UUID(x).String(), "string"
	case netip.Addr:
		return x.String(), "string"
	case netip.Prefix:
		return x.String(), "string"
	case time.Duration:
		return x.String(), "string"
	case map[string]any, []any:
		return x, "json"
	default:
		return fmt.Sprintf("%v", x), "string"
	}
}

// formatTime renders dates as YYYY-MM-DD and everything timestamp-like as
// RFC 3339 in UTC with a trailing Z.
func formatTime(t time.Time, oid uint32) string {
	if oid == pgtype.DateOID {
		return t.Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02T15:04:05.999999Z07:00")
}

// numericString renders a pgtype.Numeric as its exact decimal text. No
// float conversion is ever involved.
func numericString(n pgtype.Numeric) string {
	if !n.Valid {
		return ""
	}
	if n.NaN {
		return "NaN"
	}
	if n.InfinityModifier == pgtype.Infinity {
		return "Infinity"
	}
	if n.InfinityModifier == pgtype.NegativeInfinity {
		return "-Infinity"
	}
	if n.Int == nil {
		return "0"
	}

	digits := n.Int.String()
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}

	var s string
	switch {
	case n.Exp == 0:
		s = digits
	case n.Exp > 0:
		// scale up: 12e2 -> 1200
		s = digits + strings.Repeat("0", int(n.Exp))
	default:
		scale := int(-n.Exp)
		if len(digits) <= scale {
			s = "0." + strings.Repeat("0", scale-len(digits)) + digits
		} else {
			s = digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}
