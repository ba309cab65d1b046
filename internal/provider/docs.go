package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DocsClient adapts a word-processor provider. Pull renders the document
// body as plain text with heading lines prefixed "# "; Push clears the body
// and inserts the replacement text.
type DocsClient struct {
	c client
}

func NewDocs(baseURL, token string) *DocsClient {
	return &DocsClient{c: newClient(baseURL, token)}
}

type docsParagraph struct {
	Style    string `json:"style,omitempty"`
	Elements []struct {
		TextRun struct {
			Content string `json:"content"`
		} `json:"textRun"`
	} `json:"elements"`
}

type docsDocument struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
	RevisionID string `json:"revisionId"`
	Body       struct {
		Content []struct {
			Paragraph *docsParagraph `json:"paragraph,omitempty"`
		} `json:"content"`
	} `json:"body"`
}

func (d *DocsClient) Pull(ctx context.Context, fileID string) (string, time.Time, error) {
	modified, err := d.ModifiedAt(ctx, fileID)
	if err != nil {
		return "", time.Time{}, err
	}

	var doc docsDocument
	if err := d.c.doJSON(ctx, "GET", "/documents/"+url.PathEscape(fileID), nil, &doc); err != nil {
		return "", time.Time{}, fmt.Errorf("pull document %s: %w", fileID, err)
	}

	var lines []string
	for _, element := range doc.Body.Content {
		if element.Paragraph == nil {
			continue
		}
		var text strings.Builder
		for _, el := range element.Paragraph.Elements {
			text.WriteString(el.TextRun.Content)
		}
		if strings.HasPrefix(element.Paragraph.Style, "HEADING") {
			lines = append(lines, "# "+strings.TrimSpace(text.String()))
		} else {
			lines = append(lines, text.String())
		}
	}
	return strings.Join(lines, "\n"), modified, nil
}

func (d *DocsClient) Push(ctx context.Context, fileID, content string) (string, error) {
	// The batch update clears the existing body before inserting, so the
	// document ends up exactly equal to the pushed content.
	requests := []map[string]any{
		{"deleteBody": map[string]any{}},
	}
	if strings.TrimSpace(content) != "" {
		requests = append(requests, map[string]any{
			"insertText": map[string]any{
				"location": map[string]any{"index": 1},
				"text":     content,
			},
		})
	}

	var resp struct {
		RevisionID string `json:"revisionId"`
	}
	path := "/documents/" + url.PathEscape(fileID) + ":batchUpdate"
	if err := d.c.doJSON(ctx, "POST", path, map[string]any{"requests": requests}, &resp); err != nil {
		return "", fmt.Errorf("push document %s: %w", fileID, err)
	}
	return resp.RevisionID, nil
}

func (d *DocsClient) ModifiedAt(ctx context.Context, fileID string) (time.Time, error) {
	var meta struct {
		ModifiedTime string `json:"modifiedTime"`
	}
	path := "/files/" + url.PathEscape(fileID) + "?fields=modifiedTime"
	if err := d.c.doJSON(ctx, "GET", path, nil, &meta); err != nil {
		return time.Time{}, fmt.Errorf("document %s metadata: %w", fileID, err)
	}
	modified, err := time.Parse(time.RFC3339, meta.ModifiedTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("document %s modifiedTime %q: %w", fileID, meta.ModifiedTime, err)
	}
	return modified, nil
}

// ExtractSections splits pulled document text into named sections. A line
// is treated as a heading when it carries a markdown-style prefix or is a
// short all-caps line. Content before the first heading lands under
// "__preamble__".
func ExtractSections(content string) map[string]string {
	sections := make(map[string]string)
	heading := "__preamble__"
	var body []string

	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			sections[heading] = text
		}
		body = body[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#"):
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(trimmed, "# "))
		case isAllCapsHeading(trimmed) && len(body) > 0:
			flush()
			heading = trimmed
		default:
			body = append(body, line)
		}
	}
	flush()
	return sections
}

func isAllCapsHeading(line string) bool {
	if line == "" || len(line) >= 120 {
		return false
	}
	if line != strings.ToUpper(line) {
		return false
	}
	return strings.ContainsAny(line, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
}
