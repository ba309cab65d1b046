package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DriveClient adapts a plain file-store provider: content round-trips as an
// opaque text body with no structural mapping.
type DriveClient struct {
	c client
}

func NewDrive(baseURL, token string) *DriveClient {
	return &DriveClient{c: newClient(baseURL, token)}
}

func (d *DriveClient) Pull(ctx context.Context, fileID string) (string, time.Time, error) {
	modified, err := d.ModifiedAt(ctx, fileID)
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", d.c.baseURL+"/files/"+url.PathEscape(fileID)+"/content", nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build request: %w", err)
	}
	if d.c.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.c.token)
	}

	resp, err := d.c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("pull file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("read file %s: %w", fileID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, fmt.Errorf("pull file %s: status %d: %s", fileID, resp.StatusCode, truncate(string(data), 200))
	}
	return string(data), modified, nil
}

func (d *DriveClient) Push(ctx context.Context, fileID, content string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "PATCH", d.c.baseURL+"/files/"+url.PathEscape(fileID)+"/content", strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	if d.c.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.c.token)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := d.c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("push file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read push response for %s: %w", fileID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("push file %s: status %d: %s", fileID, resp.StatusCode, truncate(string(data), 200))
	}
	// The file store reports the new revision in a header rather than a body.
	if rev := resp.Header.Get("X-Revision-Id"); rev != "" {
		return rev, nil
	}
	return "", nil
}

func (d *DriveClient) ModifiedAt(ctx context.Context, fileID string) (time.Time, error) {
	var meta struct {
		ModifiedTime string `json:"modifiedTime"`
	}
	path := "/files/" + url.PathEscape(fileID) + "?fields=modifiedTime"
	if err := d.c.doJSON(ctx, "GET", path, nil, &meta); err != nil {
		return time.Time{}, fmt.Errorf("file %s metadata: %w", fileID, err)
	}
	modified, err := time.Parse(time.RFC3339, meta.ModifiedTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("file %s modifiedTime %q: %w", fileID, meta.ModifiedTime, err)
	}
	return modified, nil
}
