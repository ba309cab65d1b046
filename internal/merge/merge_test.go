package merge

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestDetectIdenticalSidesShortCircuits(t *testing.T) {
	bases := []*string{
		nil,
		strPtr(""),
		strPtr("some older base"),
		strPtr("Line A\nLine B"),
	}

	for _, base := range bases {
		d := Detect("same content", "same content", base)
		if d.LocalChanged || d.CloudChanged || d.HasConflict {
			t.Fatalf("identical sides must report no change, got %+v", d)
		}
		if len(d.Regions) != 0 {
			t.Fatalf("expected no regions, got %+v", d.Regions)
		}
	}
}

func TestDetectOnlyLocalChanged(t *testing.T) {
	base := "Intro\nBody\nOutro"
	d := Detect("Intro\nBody v2\nOutro", base, &base)

	if !d.LocalChanged || d.CloudChanged {
		t.Fatalf("expected local-only change, got %+v", d)
	}
	if d.HasConflict {
		t.Fatal("one-sided change must not conflict")
	}
}

func TestDetectOnlyCloudChanged(t *testing.T) {
	base := "Intro\nBody\nOutro"
	d := Detect(base, "Intro\nBody edited in cloud\nOutro", &base)

	if d.LocalChanged || !d.CloudChanged {
		t.Fatalf("expected cloud-only change, got %+v", d)
	}
	if d.HasConflict {
		t.Fatal("one-sided change must not conflict")
	}
}

func TestDetectNonOverlappingEditsNeverConflict(t *testing.T) {
	base := "Line A\nLine B\nLine C\nLine D\nLine E"
	local := "Line A edited locally\nLine B\nLine C\nLine D\nLine E"
	cloud := "Line A\nLine B\nLine C\nLine D\nLine E edited in cloud"

	d := Detect(local, cloud, &base)

	if !d.LocalChanged || !d.CloudChanged {
		t.Fatalf("expected both sides changed, got %+v", d)
	}
	if d.HasConflict {
		t.Fatalf("non-overlapping edits must not conflict, regions %+v", d.Regions)
	}
}

func TestDetectOverlappingEditsConflict(t *testing.T) {
	base := "Shared header\nOriginal content here\nShared footer"
	local := "Shared header\nPropel rewrote this\nShared footer"
	cloud := "Shared header\nCloud rewrote this\nShared footer"

	d := Detect(local, cloud, &base)

	if !d.HasConflict {
		t.Fatalf("overlapping edits must conflict, got %+v", d)
	}
	found := false
	for _, r := range d.Regions {
		if r.LineStart <= 1 && 1 <= r.LineEnd {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a region covering line 1, got %+v", d.Regions)
	}
}

func TestDetectNilBaseTreatsBothAsChanged(t *testing.T) {
	d := Detect("local text", "cloud text", nil)

	if !d.LocalChanged || !d.CloudChanged {
		t.Fatalf("nil base must treat both sides as changed, got %+v", d)
	}
	if !d.HasConflict {
		t.Fatalf("diverged content with no base must conflict, got %+v", d)
	}
}

func TestMergedContainsMarkersAndBothSides(t *testing.T) {
	local := "Shared header\nPropel rewrote this\nShared footer"
	cloud := "Shared header\nCloud rewrote this\nShared footer"

	merged := Merged(local, cloud)

	for _, want := range []string{
		MarkerLocal,
		MarkerSeparator,
		MarkerCloud,
		"Propel rewrote this",
		"Cloud rewrote this",
	} {
		if !strings.Contains(merged, want) {
			t.Fatalf("merged output missing %q:\n%s", want, merged)
		}
	}
	if !strings.HasPrefix(merged, "Shared header\n") {
		t.Fatalf("shared header must stay outside the marked region:\n%s", merged)
	}
	if !strings.HasSuffix(merged, "\nShared footer") {
		t.Fatalf("shared footer must stay outside the marked region:\n%s", merged)
	}
}

func TestMergedKeepsExtraLinesFromEitherSide(t *testing.T) {
	merged := Merged("a\nb", "a\nb\nc from cloud")
	if merged != "a\nb\nc from cloud" {
		t.Fatalf("merged = %q", merged)
	}

	merged = Merged("a\nb\nc from local", "a\nb")
	if merged != "a\nb\nc from local" {
		t.Fatalf("merged = %q", merged)
	}
}

func TestApplyCombinesNonOverlappingEdits(t *testing.T) {
	base := "Line A\nLine B\nLine C\nLine D\nLine E"
	local := "Line A edited locally\nLine B\nLine C\nLine D\nLine E"
	cloud := "Line A\nLine B\nLine C\nLine D\nLine E edited in cloud"

	merged := Apply(base, local, cloud)
	want := "Line A edited locally\nLine B\nLine C\nLine D\nLine E edited in cloud"
	if merged != want {
		t.Fatalf("Apply = %q, want %q", merged, want)
	}
}
