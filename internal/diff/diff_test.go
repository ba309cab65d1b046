package diff

import (
	"strings"
	"testing"
)

func TestComputeIdenticalInputs(t *testing.T) {
	cases := []struct {
		name      string
		content   string
		unchanged int
	}{
		{name: "empty", content: "", unchanged: 0},
		{name: "single line", content: "only line", unchanged: 1},
		{name: "multi line", content: "Line one\nLine two\nLine three", unchanged: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Compute(tc.content, tc.content)
			if !result.Empty() {
				t.Fatalf("expected empty diff, got %+v", result)
			}
			if result.Unchanged != tc.unchanged {
				t.Fatalf("unchanged = %d, want %d", result.Unchanged, tc.unchanged)
			}
		})
	}
}

func TestComputePureAddition(t *testing.T) {
	result := Compute("", "Line one\nLine two\nLine three")

	if len(result.Deletions) != 0 || len(result.Modifications) != 0 {
		t.Fatalf("expected only additions, got %+v", result)
	}
	total := 0
	for _, b := range result.Additions {
		total += strings.Count(b.Content, "\n") + 1
	}
	if total < 3 {
		t.Fatalf("added line count = %d, want >= 3", total)
	}
}

func TestComputePureDeletion(t *testing.T) {
	content := "Line one\nLine two\nLine three"
	result := Compute(content, "")

	if len(result.Additions) != 0 || len(result.Modifications) != 0 {
		t.Fatalf("expected only deletions, got %+v", result)
	}
	total := 0
	for _, b := range result.Deletions {
		total += strings.Count(b.Content, "\n") + 1
	}
	if total != 3 {
		t.Fatalf("deleted line count = %d, want 3", total)
	}
}

func TestComputeModificationCollapsesDeleteAdd(t *testing.T) {
	result := Compute("Intro\nBody\nOutro", "Intro\nBody v2\nOutro")

	if len(result.Modifications) != 1 {
		t.Fatalf("modifications = %d, want 1 (%+v)", len(result.Modifications), result)
	}
	if len(result.Additions) != 0 || len(result.Deletions) != 0 {
		t.Fatalf("expected no bare additions/deletions, got %+v", result)
	}
	mod := result.Modifications[0]
	if mod.Content != "Body v2" {
		t.Fatalf("modified content = %q, want %q", mod.Content, "Body v2")
	}
	if mod.LineStart != 1 || mod.LineEnd != 1 {
		t.Fatalf("modified range = [%d,%d], want [1,1]", mod.LineStart, mod.LineEnd)
	}
	if result.Unchanged != 2 {
		t.Fatalf("unchanged = %d, want 2", result.Unchanged)
	}
}

func TestComputeAppendedLines(t *testing.T) {
	result := Compute("Header", "Header\nNew paragraph\nAnother one")

	if len(result.Additions) != 1 {
		t.Fatalf("additions = %d, want 1 block (%+v)", len(result.Additions), result)
	}
	if result.Additions[0].Content != "New paragraph\nAnother one" {
		t.Fatalf("added content = %q", result.Additions[0].Content)
	}
	if result.Unchanged != 1 {
		t.Fatalf("unchanged = %d, want 1", result.Unchanged)
	}
}

func TestCompareSections(t *testing.T) {
	oldSections := map[string]string{
		"overview": "We deliver.",
		"pricing":  "$1M",
		"staffing": "Ten engineers",
	}
	newSections := map[string]string{
		"overview": "We deliver.",
		"pricing":  "$2M",
		"timeline": "Six months",
	}

	result := CompareSections(oldSections, newSections)

	if len(result.Additions) != 1 || result.Additions[0].Path != "timeline" {
		t.Fatalf("additions = %+v, want one for timeline", result.Additions)
	}
	if len(result.Deletions) != 1 || result.Deletions[0].Path != "staffing" {
		t.Fatalf("deletions = %+v, want one for staffing", result.Deletions)
	}
	if len(result.Modifications) != 1 || result.Modifications[0].Path != "pricing" {
		t.Fatalf("modifications = %+v, want one for pricing", result.Modifications)
	}
	if result.Unchanged != 1 {
		t.Fatalf("unchanged = %d, want 1", result.Unchanged)
	}
}

func TestSummarizeCountsBlocks(t *testing.T) {
	result := Compute("a\nb\nc\nd", "a\nB\nc\nd\ne\nf")
	summary := Summarize(result)

	if summary.Modifications != 1 {
		t.Fatalf("modifications = %d, want 1", summary.Modifications)
	}
	// "e" and "f" are consecutive, so they form a single addition block.
	if summary.Additions != 1 {
		t.Fatalf("additions = %d, want 1", summary.Additions)
	}
	if summary.Deletions != 0 {
		t.Fatalf("deletions = %d, want 0", summary.Deletions)
	}
}

func TestRenderPatchNonEmpty(t *testing.T) {
	patch := RenderPatch("Intro\nBody\nOutro", "Intro\nBody v2\nOutro")
	if patch == "" {
		t.Fatal("expected non-empty patch text")
	}
	if !strings.Contains(patch, "@@") {
		t.Fatalf("expected unified patch header, got %q", patch)
	}
}

func TestRenderInlineKeepsBothSides(t *testing.T) {
	inline := RenderInline("total: 4000000", "total: 5000000")
	if !strings.Contains(inline, "4") || !strings.Contains(inline, "5") {
		t.Fatalf("inline rendering lost a side: %q", inline)
	}
}
