// Package sync orchestrates bi-directional synchronization between Propel
// documents and their cloud copies: local edits fan out to push tasks,
// worker-claimed tasks run pushes and three-way pulls, and conflicts are
// persisted for explicit resolution rather than auto-resolved.
package sync

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"propel/engine/internal/blob"
	"propel/engine/internal/merge"
	"propel/engine/internal/provider"
	"propel/engine/internal/queue"
	"propel/engine/internal/store"
	"propel/engine/internal/version"
)

// Store is the persistence surface the manager needs. *store.PostgresStore
// satisfies it.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	DeleteDocument(ctx context.Context, documentID string) error

	InitSyncState(ctx context.Context, state store.SyncState) error
	GetSyncState(ctx context.Context, documentID string) (*store.SyncState, error)
	UpdateSyncStatus(ctx context.Context, documentID, status string) error
	MarkSynced(ctx context.Context, documentID string, version int, editedBy, editSource string) error

	VersionByNumber(ctx context.Context, documentID string, number int) (*store.DocumentVersion, error)

	InsertConflict(ctx context.Context, c store.Conflict) (string, error)
	GetConflict(ctx context.Context, conflictID string) (store.Conflict, error)
	MarkConflictResolved(ctx context.Context, conflictID, resolution, resolvedBy string) error
	PendingConflictCount(ctx context.Context, documentID string) (int, error)

	InsertDeadLetter(ctx context.Context, d store.DeadLetter) error
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
}

// Versions is the slice of the version tracker the manager uses.
type Versions interface {
	Record(ctx context.Context, documentID string, snapshot map[string]any, source, createdBy string) (store.DocumentVersion, error)
	Latest(ctx context.Context, documentID string) (*store.DocumentVersion, error)
}

// Artifact is the read-side status projection for one synced document.
type Artifact struct {
	VolumeName    string     `json:"volumeName"`
	DocumentID    string     `json:"documentId"`
	SyncStatus    string     `json:"syncStatus"`
	CloudProvider string     `json:"cloudProvider"`
	LastEditedBy  string     `json:"lastEditedBy"`
	LastEditedAt  *time.Time `json:"lastEditedAt"`
	EditSource    string     `json:"editSource"`
	WordCount     int        `json:"wordCount"`
}

// Options tune the manager; zero values fall back to sensible defaults.
type Options struct {
	MaxAttempts     int
	ProviderTimeout time.Duration
	Capture         *blob.Capture
}

type Manager struct {
	store       Store
	versions    Versions
	queue       queue.Queue
	providers   *provider.Registry
	capture     *blob.Capture
	maxAttempts int
	timeout     time.Duration
}

func NewManager(s Store, v Versions, q queue.Queue, registry *provider.Registry, opts Options) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = 30 * time.Second
	}
	return &Manager{
		store:       s,
		versions:    v,
		queue:       q,
		providers:   registry,
		capture:     opts.Capture,
		maxAttempts: opts.MaxAttempts,
		timeout:     opts.ProviderTimeout,
	}
}

// InitializeSync binds a document to a cloud file. Fails if the document is
// already bound or the provider is not registered.
func (m *Manager) InitializeSync(ctx context.Context, documentID, providerID, cloudFileID, actor string) error {
	if _, err := m.providers.Get(providerID); err != nil {
		return err
	}

	err := m.store.InitSyncState(ctx, store.SyncState{
		DocumentID:  documentID,
		Provider:    providerID,
		CloudFileID: cloudFileID,
		Status:      store.StatusIdle,
	})
	if err != nil {
		return fmt.Errorf("initialize sync for %s: %w", documentID, err)
	}

	m.audit(ctx, "sync.initialized", actor, documentID, map[string]any{
		"provider":    providerID,
		"cloudFileId": cloudFileID,
	})
	return nil
}

// HandleLocalEdit records a new version for a local edit and, when the
// document is cloud-bound, enqueues a push. Re-edits before the push runs
// just replace the pending item.
func (m *Manager) HandleLocalEdit(ctx context.Context, documentID string, snapshot map[string]any, actor string) (store.DocumentVersion, error) {
	recorded, err := m.versions.Record(ctx, documentID, snapshot, store.SourcePropel, actor)
	if err != nil {
		return store.DocumentVersion{}, err
	}

	state, err := m.store.GetSyncState(ctx, documentID)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		return recorded, nil
	}

	err = m.queue.Enqueue(ctx, queue.Item{
		DocumentID: documentID,
		Provider:   state.Provider,
		Action:     queue.ActionPush,
		Priority:   queue.DefaultPriority,
	})
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("enqueue push: %w", err)
	}
	return recorded, nil
}

// RequestPull enqueues a pull for a cloud-bound document, typically on a
// provider change notification.
func (m *Manager) RequestPull(ctx context.Context, documentID string) error {
	state, err := m.store.GetSyncState(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("document %s is not cloud-bound", documentID)
	}
	return m.queue.Enqueue(ctx, queue.Item{
		DocumentID: documentID,
		Provider:   state.Provider,
		Action:     queue.ActionPull,
		Priority:   queue.DefaultPriority,
	})
}

// ProcessItem executes one claimed queue item. Provider failures are
// retried with demoted priority until the attempt budget runs out, then the
// item lands in the dead-letter table and the document is marked errored.
// Conflicts are a successful outcome here: they are persisted for explicit
// resolution, never retried.
func (m *Manager) ProcessItem(ctx context.Context, item queue.Item) error {
	state, err := m.store.GetSyncState(ctx, item.DocumentID)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}
	if state == nil {
		// Document was unbound or deleted after enqueue.
		log.Printf("sync: dropping %s for unbound document %s", item.Action, item.DocumentID)
		return nil
	}

	p, err := m.providers.Get(state.Provider)
	if err != nil {
		return m.failItem(ctx, item, err)
	}

	if err := m.store.UpdateSyncStatus(ctx, item.DocumentID, store.StatusSyncing); err != nil {
		return fmt.Errorf("mark syncing: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	switch item.Action {
	case queue.ActionPush:
		err = m.processPush(callCtx, item, state, p)
	case queue.ActionPull:
		err = m.processPull(callCtx, item, state, p)
	default:
		return fmt.Errorf("unknown action %q", item.Action)
	}

	if err != nil {
		return m.failItem(ctx, item, err)
	}
	return nil
}

func (m *Manager) processPush(ctx context.Context, item queue.Item, state *store.SyncState, p provider.Provider) error {
	latest, err := m.versions.Latest(ctx, item.DocumentID)
	if err != nil {
		return fmt.Errorf("load latest version: %w", err)
	}
	if latest == nil {
		return fmt.Errorf("document %s has no versions to push", item.DocumentID)
	}

	content := snapshotContent(latest.Snapshot)
	if _, err := p.Push(ctx, state.CloudFileID, content); err != nil {
		return fmt.Errorf("push to %s: %w", state.Provider, err)
	}

	if err := m.store.MarkSynced(ctx, item.DocumentID, latest.VersionNumber, latest.CreatedBy, store.SourcePropel); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (m *Manager) processPull(ctx context.Context, item queue.Item, state *store.SyncState, p provider.Provider) error {
	cloudContent, _, err := p.Pull(ctx, state.CloudFileID)
	if err != nil {
		return fmt.Errorf("pull from %s: %w", state.Provider, err)
	}

	if key, err := m.capture.Store(ctx, item.DocumentID, state.Provider, []byte(cloudContent)); err != nil {
		log.Printf("sync: payload capture for %s: %v", item.DocumentID, err)
	} else if key != "" {
		log.Printf("sync: captured pull payload %s", key)
	}

	latest, err := m.versions.Latest(ctx, item.DocumentID)
	if err != nil {
		return fmt.Errorf("load latest version: %w", err)
	}
	localContent := ""
	localVersion := 0
	localAuthor := ""
	var localSnapshot map[string]any
	if latest != nil {
		localContent = snapshotContent(latest.Snapshot)
		localVersion = latest.VersionNumber
		localAuthor = latest.CreatedBy
		localSnapshot = latest.Snapshot
	}

	baseContent := m.baseContent(ctx, item.DocumentID, state.LastSyncedVersion)

	detection := merge.Detect(localContent, cloudContent, baseContent)
	switch {
	case !detection.LocalChanged && !detection.CloudChanged:
		// Copies already agree.
		return m.store.MarkSynced(ctx, item.DocumentID, localVersion, localAuthor, state.Provider)

	case detection.CloudChanged && !detection.LocalChanged:
		recorded, err := m.versions.Record(ctx, item.DocumentID,
			withContent(localSnapshot, cloudContent), state.Provider, state.Provider)
		if err != nil {
			return fmt.Errorf("record pulled version: %w", err)
		}
		return m.store.MarkSynced(ctx, item.DocumentID, recorded.VersionNumber, state.Provider, state.Provider)

	case detection.LocalChanged && !detection.CloudChanged:
		// Cloud is stale; turn the pull into a push.
		return m.queue.Enqueue(ctx, queue.Item{
			DocumentID: item.DocumentID,
			Provider:   state.Provider,
			Action:     queue.ActionPush,
			Priority:   queue.DefaultPriority,
		})

	case !detection.HasConflict && baseContent != nil:
		// Both sides moved but the edits do not overlap.
		mergedContent := merge.Apply(*baseContent, localContent, cloudContent)
		if _, err := m.versions.Record(ctx, item.DocumentID,
			withContent(localSnapshot, mergedContent), state.Provider, localAuthor); err != nil {
			return fmt.Errorf("record merged version: %w", err)
		}
		// Push so the cloud copy converges on the merge too.
		return m.queue.Enqueue(ctx, queue.Item{
			DocumentID: item.DocumentID,
			Provider:   state.Provider,
			Action:     queue.ActionPush,
			Priority:   queue.DefaultPriority,
		})

	default:
		conflictID, err := m.store.InsertConflict(ctx, store.Conflict{
			DocumentID:   item.DocumentID,
			LocalContent: localContent,
			CloudContent: cloudContent,
			BaseContent:  baseContent,
			Regions:      toRegions(detection.Regions),
			Resolution:   store.ResolutionPending,
		})
		if err != nil {
			return fmt.Errorf("persist conflict: %w", err)
		}
		if err := m.store.UpdateSyncStatus(ctx, item.DocumentID, store.StatusConflict); err != nil {
			return fmt.Errorf("mark conflict: %w", err)
		}
		m.audit(ctx, "sync.conflict", state.Provider, item.DocumentID, map[string]any{
			"conflictId": conflictID,
			"regions":    len(detection.Regions),
		})
		return nil
	}
}

// failItem applies the retry policy to a failed item.
func (m *Manager) failItem(ctx context.Context, item queue.Item, cause error) error {
	attempts := item.Attempts + 1
	if attempts >= m.maxAttempts {
		log.Printf("sync: %s %s failed permanently after %d attempts: %v",
			item.Action, item.DocumentID, attempts, cause)

		if err := m.store.InsertDeadLetter(ctx, store.DeadLetter{
			DocumentID: item.DocumentID,
			Provider:   item.Provider,
			Action:     item.Action,
			Attempts:   attempts,
			LastError:  cause.Error(),
		}); err != nil {
			return fmt.Errorf("dead-letter %s: %w", item.DocumentID, err)
		}
		if err := m.store.UpdateSyncStatus(ctx, item.DocumentID, store.StatusError); err != nil {
			return fmt.Errorf("mark error: %w", err)
		}
		m.audit(ctx, "sync.dead_letter", "", item.DocumentID, map[string]any{
			"action":   item.Action,
			"attempts": attempts,
			"error":    cause.Error(),
		})
		return nil
	}

	log.Printf("sync: %s %s attempt %d failed, requeueing: %v", item.Action, item.DocumentID, attempts, cause)
	retry := item
	retry.Attempts = attempts
	retry.Priority = item.Priority + 1
	retry.EnqueuedAt = time.Time{}
	if err := m.queue.Enqueue(ctx, retry); err != nil {
		return fmt.Errorf("requeue %s: %w", item.DocumentID, err)
	}
	return nil
}

// ResolveConflict applies an explicit conflict resolution. The chosen
// content becomes a new version, the document returns to synced, and a push
// is enqueued so the cloud copy converges. For ResolutionMerged, the
// caller-supplied content wins; empty merged content falls back to the
// marker-annotated combination of both sides.
func (m *Manager) ResolveConflict(ctx context.Context, conflictID, resolution, mergedContent, actor string) (store.DocumentVersion, error) {
	conflict, err := m.store.GetConflict(ctx, conflictID)
	if err != nil {
		return store.DocumentVersion{}, err
	}
	if conflict.Resolution != store.ResolutionPending {
		return store.DocumentVersion{}, fmt.Errorf("conflict %s already resolved as %s", conflictID, conflict.Resolution)
	}

	var content string
	switch resolution {
	case store.ResolutionKeepPropel:
		content = conflict.LocalContent
	case store.ResolutionKeepCloud:
		content = conflict.CloudContent
	case store.ResolutionMerged:
		content = mergedContent
		if content == "" {
			content = merge.Merged(conflict.LocalContent, conflict.CloudContent)
		}
	default:
		return store.DocumentVersion{}, fmt.Errorf("invalid resolution %q", resolution)
	}

	var snapshot map[string]any
	if latest, err := m.versions.Latest(ctx, conflict.DocumentID); err == nil && latest != nil {
		snapshot = latest.Snapshot
	}

	recorded, err := m.versions.Record(ctx, conflict.DocumentID, withContent(snapshot, content), store.SourcePropel, actor)
	if err != nil {
		return store.DocumentVersion{}, fmt.Errorf("record resolution: %w", err)
	}

	if err := m.store.MarkConflictResolved(ctx, conflictID, resolution, actor); err != nil {
		return store.DocumentVersion{}, err
	}
	if err := m.store.MarkSynced(ctx, conflict.DocumentID, recorded.VersionNumber, actor, store.SourcePropel); err != nil {
		return store.DocumentVersion{}, err
	}

	if state, err := m.store.GetSyncState(ctx, conflict.DocumentID); err == nil && state != nil {
		if err := m.queue.Enqueue(ctx, queue.Item{
			DocumentID: conflict.DocumentID,
			Provider:   state.Provider,
			Action:     queue.ActionPush,
			Priority:   queue.DefaultPriority,
		}); err != nil {
			log.Printf("sync: enqueue post-resolution push for %s: %v", conflict.DocumentID, err)
		}
	}

	m.audit(ctx, "conflict.resolved", actor, conflict.DocumentID, map[string]any{
		"conflictId": conflictID,
		"resolution": resolution,
	})
	return recorded, nil
}

// ArtifactStatus builds the status projection for one document.
func (m *Manager) ArtifactStatus(ctx context.Context, documentID string) (Artifact, error) {
	doc, err := m.store.GetDocument(ctx, documentID)
	if err != nil {
		return Artifact{}, err
	}

	artifact := Artifact{
		VolumeName: doc.VolumeName,
		DocumentID: doc.ID,
		SyncStatus: store.StatusIdle,
	}

	state, err := m.store.GetSyncState(ctx, documentID)
	if err != nil {
		return Artifact{}, err
	}
	if state != nil {
		artifact.SyncStatus = state.Status
		artifact.CloudProvider = state.Provider
		artifact.LastEditedAt = state.LastEditedAt
		if state.LastEditedBy != nil {
			artifact.LastEditedBy = *state.LastEditedBy
		}
		if state.EditSource != nil {
			artifact.EditSource = *state.EditSource
		}
	}

	latest, err := m.versions.Latest(ctx, documentID)
	if err != nil {
		return Artifact{}, err
	}
	if latest != nil {
		artifact.WordCount = len(strings.Fields(snapshotContent(latest.Snapshot)))
	}
	return artifact, nil
}

// DeleteDocument removes a document along with its pending queue items.
func (m *Manager) DeleteDocument(ctx context.Context, documentID, actor string) error {
	removed, err := m.queue.Remove(ctx, documentID)
	if err != nil {
		return fmt.Errorf("clear queue for %s: %w", documentID, err)
	}
	if err := m.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	m.audit(ctx, "document.deleted", actor, documentID, map[string]any{
		"queueItemsRemoved": removed,
	})
	return nil
}

func (m *Manager) baseContent(ctx context.Context, documentID string, lastSynced int) *string {
	if lastSynced <= 0 {
		return nil
	}
	base, err := m.store.VersionByNumber(ctx, documentID, lastSynced)
	if err != nil {
		log.Printf("sync: load base version %d for %s: %v", lastSynced, documentID, err)
		return nil
	}
	if base == nil {
		return nil
	}
	content := snapshotContent(base.Snapshot)
	return &content
}

func (m *Manager) audit(ctx context.Context, eventType, actor, documentID string, payload map[string]any) {
	err := m.store.InsertAuditEvent(ctx, store.AuditEvent{
		EventType:  eventType,
		ActorName:  actor,
		DocumentID: documentID,
		Payload:    payload,
	})
	if err != nil {
		log.Printf("sync: audit %s: %v", eventType, err)
	}
}

// snapshotContent extracts the syncable text of a snapshot. Snapshots carry
// their document body under "content"; anything else falls back to the
// deterministic serialization so every document has a text form.
func snapshotContent(snapshot map[string]any) string {
	if content, ok := snapshot["content"].(string); ok {
		return content
	}
	if snapshot == nil {
		return ""
	}
	return version.Serialize(snapshot)
}

// withContent returns a snapshot copy with its content replaced, keeping
// the other fields (title, metadata) intact.
func withContent(snapshot map[string]any, content string) map[string]any {
	out := make(map[string]any, len(snapshot)+1)
	for k, v := range snapshot {
		out[k] = v
	}
	out["content"] = content
	return out
}

func toRegions(regions []merge.Region) []store.ConflictRegion {
	out := make([]store.ConflictRegion, 0, len(regions))
	for _, r := range regions {
		out = append(out, store.ConflictRegion{LineStart: r.LineStart, LineEnd: r.LineEnd})
	}
	return out
}
