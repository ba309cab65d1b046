package store

import "time"

// SourcePropel marks edits that originated in the Propel authoring UI, as
// opposed to a cloud provider id.
const SourcePropel = "propel"

// Sync status values reported through the artifact status projection.
const (
	StatusIdle     = "idle"
	StatusSyncing  = "syncing"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
	StatusError    = "error"
)

type Document struct {
	ID          string
	ProposalID  string
	DocType     string
	VolumeName  string
	Title       string
	Provider    *string
	CloudFileID *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DiffSummary is the compact change record stored with each version.
// SectionsChanged lists the top-level snapshot keys whose value changed.
type DiffSummary struct {
	Additions       int      `json:"additions"`
	Deletions       int      `json:"deletions"`
	Modifications   int      `json:"modifications"`
	SectionsChanged []string `json:"sections_changed,omitempty"`
}

// DocumentVersion is an immutable snapshot. Versions per document form a
// gapless increasing sequence starting at 1; DiffSummary is nil only for
// the first version.
type DocumentVersion struct {
	ID            string
	DocumentID    string
	VersionNumber int
	Source        string
	Snapshot      map[string]any
	DiffSummary   *DiffSummary
	CreatedBy     string
	CreatedAt     time.Time
}

// SyncState tracks the relationship between a document and its bound cloud
// copy. LastSyncedVersion points at the version both sides last agreed on,
// which serves as the base for three-way merges.
type SyncState struct {
	DocumentID        string
	Provider          string
	CloudFileID       string
	Status            string
	LastSyncedVersion int
	LastEditedBy      *string
	LastEditedAt      *time.Time
	EditSource        *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type ConflictRegion struct {
	LineStart int `json:"lineStart"`
	LineEnd   int `json:"lineEnd"`
}

// Conflict resolution values.
const (
	ResolutionPending    = "pending"
	ResolutionKeepPropel = "keep_propel"
	ResolutionKeepCloud  = "keep_cloud"
	ResolutionMerged     = "merged"
)

type Conflict struct {
	ID           string
	DocumentID   string
	LocalContent string
	CloudContent string
	BaseContent  *string
	Regions      []ConflictRegion
	Resolution   string
	ResolvedBy   *string
	ResolvedAt   *time.Time
	CreatedAt    time.Time
}

type CoordinationRule struct {
	ID              string
	SourceDocType   string
	SourceFieldPath string
	TargetDocType   string
	TargetFieldPath string
	Transform       string
	Description     *string
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CascadeLogEntry records one target-field update applied by the
// coordination engine.
type CascadeLogEntry struct {
	ID         string
	RuleID     string
	DocumentID string
	FieldPath  string
	OldValue   any
	NewValue   any
	Actor      string
	ExecutedAt time.Time
}

// DeadLetter is a sync task that exhausted its retry budget. Kept visible
// until an operator retries or discards it.
type DeadLetter struct {
	ID         string
	DocumentID string
	Provider   string
	Action     string
	Attempts   int
	LastError  string
	FailedAt   time.Time
}

type AuditEvent struct {
	ID         int64
	EventType  string
	ActorName  string
	DocumentID string
	Payload    map[string]any
	CreatedAt  time.Time
}
