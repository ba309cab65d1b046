package provider

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const defaultSheet = "Sheet1"

// SheetsClient adapts a spreadsheet provider. The cell grid is flattened to
// canonical text, one "REF: value" line per non-empty cell ordered by row
// then column, so the diff and merge layers can treat spreadsheets like any
// other document.
type SheetsClient struct {
	c client
}

func NewSheets(baseURL, token string) *SheetsClient {
	return &SheetsClient{c: newClient(baseURL, token)}
}

type sheetsValueRange struct {
	Range  string  `json:"range"`
	Values [][]any `json:"values"`
}

func (s *SheetsClient) Pull(ctx context.Context, fileID string) (string, time.Time, error) {
	modified, err := s.ModifiedAt(ctx, fileID)
	if err != nil {
		return "", time.Time{}, err
	}

	var vr sheetsValueRange
	path := "/spreadsheets/" + url.PathEscape(fileID) + "/values/" + defaultSheet
	if err := s.c.doJSON(ctx, "GET", path, nil, &vr); err != nil {
		return "", time.Time{}, fmt.Errorf("pull spreadsheet %s: %w", fileID, err)
	}

	cells := ExtractCells(vr.Range, vr.Values)
	return RenderCells(cells), modified, nil
}

func (s *SheetsClient) Push(ctx context.Context, fileID, content string) (string, error) {
	cells, err := ParseCells(content)
	if err != nil {
		return "", fmt.Errorf("push spreadsheet %s: %w", fileID, err)
	}

	refs := sortedCellRefs(cells)
	data := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		data = append(data, map[string]any{
			"range":          defaultSheet + "!" + ref,
			"majorDimension": "ROWS",
			"values":         [][]any{{cells[ref]}},
		})
	}

	var resp struct {
		RevisionID string `json:"revisionId"`
	}
	path := "/spreadsheets/" + url.PathEscape(fileID) + "/values:batchUpdate"
	body := map[string]any{"valueInputOption": "USER_ENTERED", "data": data}
	if err := s.c.doJSON(ctx, "POST", path, body, &resp); err != nil {
		return "", fmt.Errorf("push spreadsheet %s: %w", fileID, err)
	}
	return resp.RevisionID, nil
}

func (s *SheetsClient) ModifiedAt(ctx context.Context, fileID string) (time.Time, error) {
	var meta struct {
		ModifiedTime string `json:"modifiedTime"`
	}
	path := "/files/" + url.PathEscape(fileID) + "?fields=modifiedTime"
	if err := s.c.doJSON(ctx, "GET", path, nil, &meta); err != nil {
		return time.Time{}, fmt.Errorf("spreadsheet %s metadata: %w", fileID, err)
	}
	modified, err := time.Parse(time.RFC3339, meta.ModifiedTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("spreadsheet %s modifiedTime %q: %w", fileID, meta.ModifiedTime, err)
	}
	return modified, nil
}

var rangeStartRe = regexp.MustCompile(`!?([A-Z]+)(\d+)`)

// ExtractCells flattens a values grid into a cell map keyed by A1-style
// references. Empty cells are omitted; numeric-looking strings become
// numbers so pushed and pulled values compare equal.
func ExtractCells(cellRange string, values [][]any) map[string]any {
	cells := make(map[string]any)
	match := rangeStartRe.FindStringSubmatch(cellRange)
	if match == nil || len(values) == 0 {
		return cells
	}

	startCol := columnIndex(match[1])
	startRow, _ := strconv.Atoi(match[2])

	for rowOffset, row := range values {
		for colOffset, val := range row {
			if val == nil {
				continue
			}
			ref := columnLetter(startCol+colOffset) + strconv.Itoa(startRow+rowOffset)
			switch v := val.(type) {
			case string:
				if v == "" {
					continue
				}
				if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && formatNumber(n) == strings.TrimSpace(v) {
					cells[ref] = n
				} else {
					cells[ref] = v
				}
			default:
				cells[ref] = val
			}
		}
	}
	return cells
}

// RenderCells produces the canonical text form of a cell map.
func RenderCells(cells map[string]any) string {
	refs := sortedCellRefs(cells)
	lines := make([]string, 0, len(refs))
	for _, ref := range refs {
		lines = append(lines, ref+": "+renderCellValue(cells[ref]))
	}
	return strings.Join(lines, "\n")
}

var cellLineRe = regexp.MustCompile(`^([A-Z]+\d+): (.*)$`)

// ParseCells inverts RenderCells.
func ParseCells(content string) (map[string]any, error) {
	cells := make(map[string]any)
	if strings.TrimSpace(content) == "" {
		return cells, nil
	}
	for i, line := range strings.Split(content, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		match := cellLineRe.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("line %d is not a cell entry: %q", i+1, line)
		}
		value := match[2]
		if n, err := strconv.ParseFloat(value, 64); err == nil && formatNumber(n) == value {
			cells[match[1]] = n
		} else {
			cells[match[1]] = value
		}
	}
	return cells, nil
}

func renderCellValue(v any) string {
	switch val := v.(type) {
	case float64:
		return formatNumber(val)
	case int:
		return strconv.Itoa(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

func sortedCellRefs(cells map[string]any) []string {
	refs := make([]string, 0, len(cells))
	for ref := range cells {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(a, b int) bool {
		colA, rowA := splitRef(refs[a])
		colB, rowB := splitRef(refs[b])
		if rowA != rowB {
			return rowA < rowB
		}
		return columnIndex(colA) < columnIndex(colB)
	})
	return refs
}

func splitRef(ref string) (string, int) {
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	row, _ := strconv.Atoi(ref[i:])
	return ref[:i], row
}

func columnIndex(letters string) int {
	index := 0
	for i := 0; i < len(letters); i++ {
		index = index*26 + int(letters[i]-'A'+1)
	}
	return index
}

func columnLetter(index int) string {
	var out []byte
	for index > 0 {
		mod := (index - 1) % 26
		out = append([]byte{byte('A' + mod)}, out...)
		index = (index - 1) / 26
	}
	return string(out)
}
