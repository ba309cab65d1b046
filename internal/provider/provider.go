// Package provider holds the cloud editor adapters. Each adapter speaks one
// provider's HTTP API and exposes the same capability surface: pull the
// current content, push replacement content, and report the cloud-side
// modification time. Callers select an adapter through the Registry and
// never branch on provider identity beyond that.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const (
	// Canonical provider ids, matching the documents.provider column.
	Docs   = "gdocs"
	Sheets = "gsheets"
	Drive  = "gdrive"
)

type Provider interface {
	// Pull fetches the current cloud content rendered as canonical text,
	// plus the cloud-side last-modified time.
	Pull(ctx context.Context, fileID string) (string, time.Time, error)
	// Push replaces the cloud content and returns the provider's revision
	// token for the new state.
	Push(ctx context.Context, fileID, content string) (string, error)
	// ModifiedAt reports the cloud-side last-modified time without
	// transferring content.
	ModifiedAt(ctx context.Context, fileID string) (time.Time, error)
}

// Registry maps provider ids to adapters.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func (r *Registry) Register(id string, p Provider) {
	r.providers[id] = p
}

func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	return p, nil
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
