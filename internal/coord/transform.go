// Package coord propagates field changes across related documents in a
// proposal. Rules bind a source document type and field path to a target,
// with a transform applied in between; the engine previews and applies the
// resulting cascades.
package coord

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Transform types.
const (
	TransformCopy      = "copy"
	TransformFormat    = "format"
	TransformAggregate = "aggregate"
	TransformReference = "reference"
)

var printer = message.NewPrinter(language.AmericanEnglish)

// ApplyTransform computes the target-field value for a source value.
// Transforms are lenient: values that do not fit the transform's expected
// shape pass through or coerce rather than erroring, since rule authors
// cannot see every document's data up front.
func ApplyTransform(transform string, value any) any {
	switch transform {
	case TransformFormat:
		// Only genuine numbers become currency; numeric-looking strings
		// stay strings.
		if _, isString := value.(string); !isString {
			if n, ok := asNumber(value); ok {
				return formatCurrency(n)
			}
		}
		if t, ok := value.(time.Time); ok {
			return t.UTC().Format(time.RFC3339)
		}
		return stringify(value)

	case TransformAggregate:
		items, ok := value.([]any)
		if !ok {
			// Scalars pass through untouched.
			return value
		}
		sum := 0.0
		for _, item := range items {
			if n, ok := asNumber(item); ok {
				sum += n
			}
		}
		return sum

	case TransformReference:
		return "[ref:" + stringify(value) + "]"

	case TransformCopy:
		return value

	default:
		return value
	}
}

// formatCurrency renders a number as grouped US dollars with no cents,
// e.g. 5000000 becomes "$5,000,000".
func formatCurrency(n float64) string {
	return printer.Sprintf("$%v", number.Decimal(n, number.MaxFractionDigits(0)))
}

// asNumber interprets a value as a float64. Strings are parsed; anything
// non-numeric reports false.
func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// stringify renders a value the way it should appear inside document text.
// Nil renders empty rather than "<nil>".
func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
