package coord

import (
	"strings"
	"testing"
	"time"
)

func TestApplyTransformCopy(t *testing.T) {
	values := []any{"text", 42, nil, []any{1.0, 2.0}, map[string]any{"a": 1.0}}
	for _, v := range values {
		got := ApplyTransform(TransformCopy, v)
		switch v.(type) {
		case []any, map[string]any:
			// Reference types: identity is enough.
			if got == nil {
				t.Fatalf("copy of %v returned nil", v)
			}
		default:
			if got != v {
				t.Fatalf("copy transform changed %v to %v", v, got)
			}
		}
	}
}

func TestApplyTransformFormat(t *testing.T) {
	got, ok := ApplyTransform(TransformFormat, 5000000).(string)
	if !ok {
		t.Fatal("format of a number must produce a string")
	}
	if !strings.Contains(got, "$") || !strings.Contains(got, "5,000,000") {
		t.Fatalf("formatted currency = %q, want grouped dollars", got)
	}

	if got := ApplyTransform(TransformFormat, 1234.56); got != "$1,235" {
		t.Fatalf("fractional amount = %v, want rounded to whole dollars", got)
	}

	stamp := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	if got := ApplyTransform(TransformFormat, stamp); got != "2026-03-01T10:30:00Z" {
		t.Fatalf("formatted time = %v", got)
	}

	if got := ApplyTransform(TransformFormat, nil); got != "" {
		t.Fatalf("format of nil = %q, want empty string", got)
	}

	// Numeric-looking strings are not reformatted.
	if got := ApplyTransform(TransformFormat, "2500000"); got != "2500000" {
		t.Fatalf("numeric string = %v, want passthrough", got)
	}
}

func TestApplyTransformReference(t *testing.T) {
	if got := ApplyTransform(TransformReference, "Section 3.2"); got != "[ref:Section 3.2]" {
		t.Fatalf("reference = %v", got)
	}
	if got := ApplyTransform(TransformReference, 42); got != "[ref:42]" {
		t.Fatalf("numeric reference = %v", got)
	}
	if got := ApplyTransform(TransformReference, nil); got != "[ref:]" {
		t.Fatalf("nil reference = %v", got)
	}
}

func TestApplyTransformAggregate(t *testing.T) {
	got := ApplyTransform(TransformAggregate, []any{100.0, "200", "not a number", 50.5, nil})
	if got != 350.5 {
		t.Fatalf("aggregate sum = %v, want 350.5", got)
	}

	if got := ApplyTransform(TransformAggregate, []any{}); got != 0.0 {
		t.Fatalf("aggregate of empty array = %v, want 0", got)
	}

	// Scalars pass through untouched.
	if got := ApplyTransform(TransformAggregate, 7.0); got != 7.0 {
		t.Fatalf("aggregate of scalar = %v, want passthrough", got)
	}
	if got := ApplyTransform(TransformAggregate, "plain"); got != "plain" {
		t.Fatalf("aggregate of string = %v, want passthrough", got)
	}
}

func TestApplyTransformUnknownPassesThrough(t *testing.T) {
	if got := ApplyTransform("uppercase", "value"); got != "value" {
		t.Fatalf("unknown transform = %v, want passthrough", got)
	}
}

func TestGetPath(t *testing.T) {
	snapshot := map[string]any{
		"title": "Cover Letter",
		"pricing": map[string]any{
			"total": 5000000.0,
			"labor": map[string]any{"hours": 1920.0},
		},
	}

	if v, ok := GetPath(snapshot, "title"); !ok || v != "Cover Letter" {
		t.Fatalf("title = %v, %v", v, ok)
	}
	if v, ok := GetPath(snapshot, "pricing.labor.hours"); !ok || v != 1920.0 {
		t.Fatalf("nested = %v, %v", v, ok)
	}
	if _, ok := GetPath(snapshot, "pricing.missing"); ok {
		t.Fatal("missing key resolved")
	}
	if _, ok := GetPath(snapshot, "title.sub"); ok {
		t.Fatal("path through a scalar resolved")
	}
}

func TestSetPathCopiesOnWrite(t *testing.T) {
	original := map[string]any{
		"pricing": map[string]any{"total": 100.0},
	}

	updated := SetPath(original, "pricing.total", 200.0)
	if v, _ := GetPath(updated, "pricing.total"); v != 200.0 {
		t.Fatalf("updated total = %v", v)
	}
	if v, _ := GetPath(original, "pricing.total"); v != 100.0 {
		t.Fatalf("original mutated: total = %v", v)
	}

	created := SetPath(map[string]any{}, "a.b.c", "deep")
	if v, ok := GetPath(created, "a.b.c"); !ok || v != "deep" {
		t.Fatalf("intermediate maps not created: %v", created)
	}

	// A scalar in the way is replaced by a map.
	replaced := SetPath(map[string]any{"a": "scalar"}, "a.b", 1.0)
	if v, ok := GetPath(replaced, "a.b"); !ok || v != 1.0 {
		t.Fatalf("scalar not replaced: %v", replaced)
	}
}
