// Package version maintains the append-only version history of each
// document: gapless numbering from 1, a full snapshot per version, and a
// diff summary against the immediately preceding snapshot.
package version

import (
	"context"
	"fmt"
	"log"

	"propel/engine/internal/diff"
	"propel/engine/internal/store"
)

type Store interface {
	InsertVersion(ctx context.Context, v store.DocumentVersion) (store.DocumentVersion, error)
	LatestVersion(ctx context.Context, documentID string) (*store.DocumentVersion, error)
	ListVersions(ctx context.Context, documentID string) ([]store.DocumentVersion, error)
	GetVersion(ctx context.Context, versionID string) (*store.DocumentVersion, error)
}

// Archiver mirrors recorded snapshots into a browsable per-document
// history. Optional; failures are logged, never fatal, because the store
// row is the source of truth.
type Archiver interface {
	CommitSnapshot(documentID string, snapshot map[string]any, author, message string) error
}

type Tracker struct {
	store   Store
	archive Archiver
}

func NewTracker(s Store) *Tracker {
	return &Tracker{store: s}
}

// NewTrackerWithArchive additionally mirrors every recorded version into
// the given archive.
func NewTrackerWithArchive(s Store, archive Archiver) *Tracker {
	return &Tracker{store: s, archive: archive}
}

// Record appends a new version. The version number is assigned by the
// store's serialized increment; the diff summary is computed against the
// latest prior snapshot and is nil for a document's first version. The
// version is durable before Record returns.
func (t *Tracker) Record(ctx context.Context, documentID string, snapshot map[string]any, source, createdBy string) (store.DocumentVersion, error) {
	latest, err := t.store.LatestVersion(ctx, documentID)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("load latest version: %w", err)
	}

	var summary *store.DiffSummary
	prevNumber := 0
	if latest != nil {
		prevNumber = latest.VersionNumber
		result := diff.Compute(Serialize(latest.Snapshot), Serialize(snapshot))
		counts := diff.Summarize(result)
		summary = &store.DiffSummary{
			Additions:       counts.Additions,
			Deletions:       counts.Deletions,
			Modifications:   counts.Modifications,
			SectionsChanged: ChangedSections(latest.Snapshot, snapshot),
		}
	}

	recorded, err := t.store.InsertVersion(ctx, store.DocumentVersion{
		DocumentID:  documentID,
		Source:      source,
		Snapshot:    snapshot,
		DiffSummary: summary,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("record version: %w", err)
	}

	// A concurrent writer slipped in between the read and the insert: the
	// summary we computed describes the wrong predecessor. Numbering is
	// still correct, so surface it loudly rather than corrupting history.
	if recorded.VersionNumber != prevNumber+1 {
		return store.DocumentVersion{}, fmt.Errorf(
			"version race on document %s: recorded v%d after reading v%d",
			documentID, recorded.VersionNumber, prevNumber)
	}

	if t.archive != nil {
		message := fmt.Sprintf("Version %d via %s", recorded.VersionNumber, source)
		if err := t.archive.CommitSnapshot(documentID, snapshot, createdBy, message); err != nil {
			log.Printf("version: archive mirror for %s: %v", documentID, err)
		}
	}

	return recorded, nil
}

// History returns all versions of a document ordered by version number
// ascending.
func (t *Tracker) History(ctx context.Context, documentID string) ([]store.DocumentVersion, error) {
	return t.store.ListVersions(ctx, documentID)
}

// Latest returns the most recent version, or nil if none exists.
func (t *Tracker) Latest(ctx context.Context, documentID string) (*store.DocumentVersion, error) {
	return t.store.LatestVersion(ctx, documentID)
}

// RenderPatch produces a unified-patch rendering of the change between two
// stored versions, for history views. Returns "" if either version cannot
// be found.
func (t *Tracker) RenderPatch(ctx context.Context, oldVersionID, newVersionID string) (string, error) {
	oldVersion, err := t.store.GetVersion(ctx, oldVersionID)
	if err != nil {
		return "", fmt.Errorf("load version %s: %w", oldVersionID, err)
	}
	newVersion, err := t.store.GetVersion(ctx, newVersionID)
	if err != nil {
		return "", fmt.Errorf("load version %s: %w", newVersionID, err)
	}
	if oldVersion == nil || newVersion == nil {
		return "", nil
	}
	return diff.RenderPatch(Serialize(oldVersion.Snapshot), Serialize(newVersion.Snapshot)), nil
}

// DiffVersions compares two stored versions by serialized snapshot.
// Returns nil if either version cannot be found.
func (t *Tracker) DiffVersions(ctx context.Context, oldVersionID, newVersionID string) (*diff.Result, error) {
	oldVersion, err := t.store.GetVersion(ctx, oldVersionID)
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", oldVersionID, err)
	}
	newVersion, err := t.store.GetVersion(ctx, newVersionID)
	if err != nil {
		return nil, fmt.Errorf("load version %s: %w", newVersionID, err)
	}
	if oldVersion == nil || newVersion == nil {
		return nil, nil
	}
	result := diff.Compute(Serialize(oldVersion.Snapshot), Serialize(newVersion.Snapshot))
	return &result, nil
}
