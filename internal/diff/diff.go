// Package diff computes line-level and section-level differences between
// two document snapshots. Pure functions, no I/O; safe for concurrent use.
package diff

import "strings"

// Block is a contiguous run of changed lines, or a changed section when the
// diff was computed at section granularity.
type Block struct {
	Path      string
	Content   string
	LineStart int
	LineEnd   int
}

// Result classifies every comparable unit as added, deleted, modified or
// unchanged. Unchanged counts units, the other fields hold blocks.
type Result struct {
	Additions     []Block
	Deletions     []Block
	Modifications []Block
	Unchanged     int
}

// Summary is the compact form stored in a version's diff summary.
type Summary struct {
	Additions     int `json:"additions"`
	Deletions     int `json:"deletions"`
	Modifications int `json:"modifications"`
}

// Empty reports whether the diff found no changes at all.
func (r Result) Empty() bool {
	return len(r.Additions) == 0 && len(r.Deletions) == 0 && len(r.Modifications) == 0
}

// Compute diffs two content strings line by line. An LCS alignment
// classifies each line; a deletion immediately followed by an addition of
// the same length at the same position is reported as one modification
// block rather than a delete/add pair.
func Compute(oldContent, newContent string) Result {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	table := lcsTable(oldLines, newLines)
	added, removed, modified, same := walkLCS(oldLines, newLines, table)

	result := Result{Unchanged: same}
	for _, b := range added {
		result.Additions = append(result.Additions, lineBlockToBlock(b))
	}
	for _, b := range removed {
		result.Deletions = append(result.Deletions, lineBlockToBlock(b))
	}
	for _, b := range modified {
		result.Modifications = append(result.Modifications, lineBlockToBlock(b))
	}
	return result
}

// CompareSections diffs two maps of named sections. Each key is a section
// name; a key present on only one side is an addition or deletion, a key on
// both sides with different content is a modification.
func CompareSections(oldSections, newSections map[string]string) Result {
	var result Result

	seen := make(map[string]struct{}, len(oldSections)+len(newSections))
	for key := range oldSections {
		seen[key] = struct{}{}
	}
	for key := range newSections {
		seen[key] = struct{}{}
	}

	for key := range seen {
		oldValue, hasOld := oldSections[key]
		newValue, hasNew := newSections[key]

		switch {
		case !hasOld && hasNew:
			result.Additions = append(result.Additions, Block{Path: key, Content: newValue})
		case hasOld && !hasNew:
			result.Deletions = append(result.Deletions, Block{Path: key, Content: oldValue})
		case oldValue != newValue:
			result.Modifications = append(result.Modifications, Block{Path: key, Content: newValue})
		default:
			result.Unchanged++
		}
	}
	return result
}

// Summarize projects a Result to block counts for version records and UI
// badges. Counts blocks, not underlying lines.
func Summarize(r Result) Summary {
	return Summary{
		Additions:     len(r.Additions),
		Deletions:     len(r.Deletions),
		Modifications: len(r.Modifications),
	}
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

type lineBlock struct {
	start int
	lines []string
}

func lineBlockToBlock(b lineBlock) Block {
	return Block{
		Path:      "line",
		Content:   strings.Join(b.lines, "\n"),
		LineStart: b.start,
		LineEnd:   b.start + len(b.lines) - 1,
	}
}

// lcsTable builds the longest-common-subsequence length table where
// table[i][j] covers oldLines[:i] and newLines[:j].
func lcsTable(oldLines, newLines []string) [][]int {
	m, n := len(oldLines), len(newLines)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if oldLines[i-1] == newLines[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] >= table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}
	return table
}

type indexedLine struct {
	index int
	line  string
}

// walkLCS traces the table backwards, groups consecutive changed lines into
// blocks, then reclassifies aligned add/remove block pairs of equal length
// as modifications.
func walkLCS(oldLines, newLines []string, table [][]int) (added, removed, modified []lineBlock, same int) {
	i, j := len(oldLines), len(newLines)
	var addedLines, removedLines []indexedLine

	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && oldLines[i-1] == newLines[j-1]:
			same++
			i--
			j--
		case j > 0 && (i == 0 || table[i][j-1] >= table[i-1][j]):
			addedLines = append([]indexedLine{{index: j - 1, line: newLines[j-1]}}, addedLines...)
			j--
		default:
			removedLines = append([]indexedLine{{index: i - 1, line: oldLines[i-1]}}, removedLines...)
			i--
		}
	}

	added = groupConsecutive(addedLines)
	removed = groupConsecutive(removedLines)

	// An added block and a removed block with matching length starting within
	// one line of each other represent in-place edits.
	matchedRemovals := make(map[int]bool)
	for ai := 0; ai < len(added); ai++ {
		for ri := range removed {
			if matchedRemovals[ri] {
				continue
			}
			if len(added[ai].lines) == len(removed[ri].lines) && abs(added[ai].start-removed[ri].start) <= 1 {
				modified = append(modified, added[ai])
				matchedRemovals[ri] = true
				added = append(added[:ai], added[ai+1:]...)
				ai--
				break
			}
		}
	}

	kept := removed[:0]
	for ri := range removed {
		if !matchedRemovals[ri] {
			kept = append(kept, removed[ri])
		}
	}
	removed = kept

	return added, removed, modified, same
}

func groupConsecutive(entries []indexedLine) []lineBlock {
	var blocks []lineBlock
	for _, entry := range entries {
		if n := len(blocks); n > 0 && entry.index == blocks[n-1].start+len(blocks[n-1].lines) {
			blocks[n-1].lines = append(blocks[n-1].lines, entry.line)
		} else {
			blocks = append(blocks, lineBlock{start: entry.index, lines: []string{entry.line}})
		}
	}
	return blocks
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
