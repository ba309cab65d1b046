// Package merge implements three-way conflict detection between the Propel
// copy of a document and its cloud copy, relative to the last content both
// sides agreed on. Pure functions; conflict is an expected outcome, not an
// error.
package merge

import "strings"

// Marker strings are an external contract: downstream consumers grep the
// merged text for these exact tokens. Changing them is a breaking change.
const (
	MarkerLocal     = "<<<<<<< Propel"
	MarkerSeparator = "======="
	MarkerCloud     = ">>>>>>> Cloud"
)

// Region is a 0-indexed inclusive line range where both sides diverged.
type Region struct {
	LineStart int `json:"lineStart"`
	LineEnd   int `json:"lineEnd"`
}

// Detection reports which sides changed relative to base and where their
// changes collide.
type Detection struct {
	LocalChanged bool
	CloudChanged bool
	HasConflict  bool
	Regions      []Region
}

// Detect compares local and cloud content against a common base. A nil base
// means no ancestor is known and both sides are treated as changed.
//
// Identical local and cloud content short-circuits to no change on either
// side: the copies converged, which is not evidence that both were edited.
func Detect(localContent, cloudContent string, baseContent *string) Detection {
	if localContent == cloudContent {
		return Detection{}
	}

	localChanged := baseContent == nil || localContent != *baseContent
	cloudChanged := baseContent == nil || cloudContent != *baseContent

	// Only one side moved: auto-resolve to that side, no conflict.
	if !localChanged || !cloudChanged {
		return Detection{LocalChanged: localChanged, CloudChanged: cloudChanged}
	}

	localLines := strings.Split(localContent, "\n")
	cloudLines := strings.Split(cloudContent, "\n")
	var baseLines []string
	if baseContent != nil {
		baseLines = strings.Split(*baseContent, "\n")
	}

	maxLen := len(localLines)
	if len(cloudLines) > maxLen {
		maxLen = len(cloudLines)
	}
	if len(baseLines) > maxLen {
		maxLen = len(baseLines)
	}

	var regions []Region
	regionStart := -1

	for i := 0; i < maxLen; i++ {
		baseLine := lineAt(baseLines, i)
		localLine := lineAt(localLines, i)
		cloudLine := lineAt(cloudLines, i)

		bothDiffer := localLine != baseLine && cloudLine != baseLine && localLine != cloudLine
		if bothDiffer {
			if regionStart < 0 {
				regionStart = i
			}
		} else if regionStart >= 0 {
			regions = append(regions, Region{LineStart: regionStart, LineEnd: i - 1})
			regionStart = -1
		}
	}
	if regionStart >= 0 {
		regions = append(regions, Region{LineStart: regionStart, LineEnd: maxLen - 1})
	}

	return Detection{
		LocalChanged: true,
		CloudChanged: true,
		HasConflict:  len(regions) > 0,
		Regions:      regions,
	}
}

// Merged produces conflict-marked text combining both sides. Lines present
// on only one side and lines identical on both sides pass through; lines
// that differ are bracketed by the Propel/Cloud markers with each side's
// content verbatim. Only meaningful when Detect reported a conflict.
func Merged(localContent, cloudContent string) string {
	localLines := strings.Split(localContent, "\n")
	cloudLines := strings.Split(cloudContent, "\n")

	maxLen := len(localLines)
	if len(cloudLines) > maxLen {
		maxLen = len(cloudLines)
	}

	merged := make([]string, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		switch {
		case i >= len(localLines):
			merged = append(merged, cloudLines[i])
		case i >= len(cloudLines):
			merged = append(merged, localLines[i])
		case localLines[i] == cloudLines[i]:
			merged = append(merged, localLines[i])
		default:
			merged = append(merged,
				MarkerLocal,
				localLines[i],
				MarkerSeparator,
				cloudLines[i],
				MarkerCloud,
			)
		}
	}
	return strings.Join(merged, "\n")
}

// Apply produces a clean three-way merge of non-overlapping edits: for each
// line position the side that diverged from base wins, with local taking
// precedence. Callers must first establish via Detect that the edits do not
// overlap.
func Apply(baseContent, localContent, cloudContent string) string {
	baseLines := strings.Split(baseContent, "\n")
	localLines := strings.Split(localContent, "\n")
	cloudLines := strings.Split(cloudContent, "\n")

	maxLen := len(baseLines)
	if len(localLines) > maxLen {
		maxLen = len(localLines)
	}
	if len(cloudLines) > maxLen {
		maxLen = len(cloudLines)
	}

	merged := make([]string, 0, maxLen)
	for i := 0; i < maxLen; i++ {
		baseLine := lineAt(baseLines, i)
		localLine := lineAt(localLines, i)
		cloudLine := lineAt(cloudLines, i)

		switch {
		case localLine != baseLine && i < len(localLines):
			merged = append(merged, localLine)
		case cloudLine != baseLine && i < len(cloudLines):
			merged = append(merged, cloudLine)
		case i < len(baseLines):
			merged = append(merged, baseLine)
		}
	}
	return strings.Join(merged, "\n")
}

func lineAt(lines []string, i int) string {
	if i < len(lines) {
		return lines[i]
	}
	return ""
}
