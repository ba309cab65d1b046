package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"propel/engine/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ─── Documents ───────────────────────────────────────────────

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, proposal_id, doc_type, volume_name, title, provider, cloud_file_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, doc.ID, doc.ProposalID, doc.DocType, doc.VolumeName, doc.Title, doc.Provider, doc.CloudFileID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, doc_type, volume_name, title, provider, cloud_file_id, created_at, updated_at
		FROM documents WHERE id=$1
	`, documentID).Scan(&doc.ID, &doc.ProposalID, &doc.DocType, &doc.VolumeName, &doc.Title,
		&doc.Provider, &doc.CloudFileID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("get document %s: %w", documentID, err)
	}
	return doc, nil
}

// ListDocumentsByType returns the documents of a given type linked to a
// proposal, excluding excludeID (pass "" to exclude nothing).
func (s *PostgresStore) ListDocumentsByType(ctx context.Context, proposalID, docType, excludeID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, doc_type, volume_name, title, provider, cloud_file_id, created_at, updated_at
		FROM documents
		WHERE proposal_id=$1 AND doc_type=$2 AND id <> $3
		ORDER BY created_at ASC
	`, proposalID, docType, excludeID)
	if err != nil {
		return nil, fmt.Errorf("list documents by type: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.ProposalID, &doc.DocType, &doc.VolumeName, &doc.Title,
			&doc.Provider, &doc.CloudFileID, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	return nil
}

// ─── Versions ────────────────────────────────────────────────

// InsertVersion assigns the next version number for the document and
// inserts the snapshot in one statement. The SELECT MAX+1 races under
// concurrent writers; the UNIQUE(document_id, version_number) constraint
// turns the loser into a retry instead of a duplicate number.
func (s *PostgresStore) InsertVersion(ctx context.Context, v DocumentVersion) (DocumentVersion, error) {
	snapshot, err := json.Marshal(v.Snapshot)
	if err != nil {
		return DocumentVersion{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	var summary []byte
	if v.DiffSummary != nil {
		if summary, err = json.Marshal(v.DiffSummary); err != nil {
			return DocumentVersion{}, fmt.Errorf("marshal diff summary: %w", err)
		}
	}

	const insert = `
		INSERT INTO document_versions (id, document_id, version_number, source, snapshot, diff_summary, created_by)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, $6
		FROM document_versions WHERE document_id = $2
		RETURNING version_number, created_at
	`

	for attempt := 0; attempt < 3; attempt++ {
		v.ID = util.NewID("ver")
		err = s.db.QueryRowContext(ctx, insert, v.ID, v.DocumentID, v.Source, snapshot, summary, v.CreatedBy).
			Scan(&v.VersionNumber, &v.CreatedAt)
		if err == nil {
			return v, nil
		}
		if !isUniqueViolation(err) {
			return DocumentVersion{}, fmt.Errorf("insert version for %s: %w", v.DocumentID, err)
		}
	}
	return DocumentVersion{}, fmt.Errorf("insert version for %s: contention on version number", v.DocumentID)
}

func (s *PostgresStore) LatestVersion(ctx context.Context, documentID string) (*DocumentVersion, error) {
	return s.scanVersion(s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, source, snapshot, diff_summary, created_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version_number DESC
		LIMIT 1
	`, documentID))
}

func (s *PostgresStore) VersionByNumber(ctx context.Context, documentID string, number int) (*DocumentVersion, error) {
	return s.scanVersion(s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, source, snapshot, diff_summary, created_by, created_at
		FROM document_versions
		WHERE document_id=$1 AND version_number=$2
	`, documentID, number))
}

func (s *PostgresStore) GetVersion(ctx context.Context, versionID string) (*DocumentVersion, error) {
	return s.scanVersion(s.db.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, source, snapshot, diff_summary, created_by, created_at
		FROM document_versions
		WHERE id=$1
	`, versionID))
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, source, snapshot, diff_summary, created_by, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY version_number ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []DocumentVersion
	for rows.Next() {
		version, err := scanVersionRow(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *version)
	}
	return versions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanVersion(row *sql.Row) (*DocumentVersion, error) {
	version, err := scanVersionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return version, err
}

func scanVersionRow(row rowScanner) (*DocumentVersion, error) {
	var v DocumentVersion
	var snapshot, summary []byte
	if err := row.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.Source, &snapshot, &summary, &v.CreatedBy, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan version: %w", err)
	}
	if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if len(summary) > 0 {
		v.DiffSummary = &DiffSummary{}
		if err := json.Unmarshal(summary, v.DiffSummary); err != nil {
			return nil, fmt.Errorf("unmarshal diff summary: %w", err)
		}
	}
	return &v, nil
}

// ─── Sync state ──────────────────────────────────────────────

func (s *PostgresStore) InitSyncState(ctx context.Context, state SyncState) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO document_sync_state (document_id, provider, cloud_file_id, sync_status, last_synced_version)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id) DO NOTHING
	`, state.DocumentID, state.Provider, state.CloudFileID, StatusIdle, state.LastSyncedVersion)
	if err != nil {
		return fmt.Errorf("init sync state: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("sync already initialized for document %s", state.DocumentID)
	}
	return nil
}

func (s *PostgresStore) GetSyncState(ctx context.Context, documentID string) (*SyncState, error) {
	var state SyncState
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, provider, cloud_file_id, sync_status, last_synced_version,
		       last_edited_by, last_edited_at, edit_source, created_at, updated_at
		FROM document_sync_state WHERE document_id=$1
	`, documentID).Scan(&state.DocumentID, &state.Provider, &state.CloudFileID, &state.Status,
		&state.LastSyncedVersion, &state.LastEditedBy, &state.LastEditedAt, &state.EditSource,
		&state.CreatedAt, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync state %s: %w", documentID, err)
	}
	return &state, nil
}

func (s *PostgresStore) UpdateSyncStatus(ctx context.Context, documentID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_sync_state SET sync_status=$2, updated_at=NOW() WHERE document_id=$1
	`, documentID, status)
	if err != nil {
		return fmt.Errorf("update sync status %s: %w", documentID, err)
	}
	return nil
}

// MarkSynced advances the merge base pointer and records who produced the
// content that both sides now agree on.
func (s *PostgresStore) MarkSynced(ctx context.Context, documentID string, version int, editedBy, editSource string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE document_sync_state
		SET sync_status=$2, last_synced_version=$3, last_edited_by=$4, last_edited_at=NOW(), edit_source=$5, updated_at=NOW()
		WHERE document_id=$1
	`, documentID, StatusSynced, version, editedBy, editSource)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", documentID, err)
	}
	return nil
}

// ─── Conflicts ───────────────────────────────────────────────

func (s *PostgresStore) InsertConflict(ctx context.Context, c Conflict) (string, error) {
	regions, err := json.Marshal(c.Regions)
	if err != nil {
		return "", fmt.Errorf("marshal conflict regions: %w", err)
	}
	id := util.NewID("cfl")
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_conflicts (id, document_id, local_content, cloud_content, base_content, regions, resolution)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, c.DocumentID, c.LocalContent, c.CloudContent, c.BaseContent, regions, ResolutionPending)
	if err != nil {
		return "", fmt.Errorf("insert conflict: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetConflict(ctx context.Context, conflictID string) (Conflict, error) {
	var c Conflict
	var regions []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, local_content, cloud_content, base_content, regions, resolution, resolved_by, resolved_at, created_at
		FROM sync_conflicts WHERE id=$1
	`, conflictID).Scan(&c.ID, &c.DocumentID, &c.LocalContent, &c.CloudContent, &c.BaseContent,
		&regions, &c.Resolution, &c.ResolvedBy, &c.ResolvedAt, &c.CreatedAt)
	if err != nil {
		return Conflict{}, fmt.Errorf("get conflict %s: %w", conflictID, err)
	}
	if err := json.Unmarshal(regions, &c.Regions); err != nil {
		return Conflict{}, fmt.Errorf("unmarshal conflict regions: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) MarkConflictResolved(ctx context.Context, conflictID, resolution, resolvedBy string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_conflicts SET resolution=$2, resolved_by=$3, resolved_at=NOW() WHERE id=$1
	`, conflictID, resolution, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolve conflict %s: %w", conflictID, err)
	}
	return nil
}

func (s *PostgresStore) PendingConflictCount(ctx context.Context, documentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_conflicts WHERE document_id=$1 AND resolution='pending'
	`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending conflicts: %w", err)
	}
	return count, nil
}

// ─── Coordination rules and cascade log ──────────────────────

func (s *PostgresStore) InsertRule(ctx context.Context, rule CoordinationRule) (string, error) {
	id := util.NewID("rule")
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coordination_rules (id, source_doc_type, source_field_path, target_doc_type, target_field_path, transform, description, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, rule.SourceDocType, rule.SourceFieldPath, rule.TargetDocType, rule.TargetFieldPath,
		rule.Transform, rule.Description, rule.IsActive)
	if err != nil {
		return "", fmt.Errorf("insert rule: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) DeactivateRule(ctx context.Context, ruleID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE coordination_rules SET is_active=FALSE, updated_at=NOW() WHERE id=$1
	`, ruleID)
	if err != nil {
		return fmt.Errorf("deactivate rule %s: %w", ruleID, err)
	}
	return nil
}

func (s *PostgresStore) RulesForField(ctx context.Context, sourceFieldPath string) ([]CoordinationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_doc_type, source_field_path, target_doc_type, target_field_path, transform, description, is_active, created_at, updated_at
		FROM coordination_rules
		WHERE source_field_path=$1 AND is_active
		ORDER BY created_at ASC
	`, sourceFieldPath)
	if err != nil {
		return nil, fmt.Errorf("rules for field: %w", err)
	}
	defer rows.Close()

	var rules []CoordinationRule
	for rows.Next() {
		var rule CoordinationRule
		if err := rows.Scan(&rule.ID, &rule.SourceDocType, &rule.SourceFieldPath, &rule.TargetDocType,
			&rule.TargetFieldPath, &rule.Transform, &rule.Description, &rule.IsActive,
			&rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *PostgresStore) AppendCascadeLog(ctx context.Context, entry CascadeLogEntry) error {
	oldValue, err := json.Marshal(entry.OldValue)
	if err != nil {
		return fmt.Errorf("marshal cascade old value: %w", err)
	}
	newValue, err := json.Marshal(entry.NewValue)
	if err != nil {
		return fmt.Errorf("marshal cascade new value: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO coordination_log (id, rule_id, document_id, field_path, old_value, new_value, actor)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, util.NewID("cas"), entry.RuleID, entry.DocumentID, entry.FieldPath, oldValue, newValue, entry.Actor)
	if err != nil {
		return fmt.Errorf("append cascade log: %w", err)
	}
	return nil
}

// ─── Dead letters ────────────────────────────────────────────

func (s *PostgresStore) InsertDeadLetter(ctx context.Context, d DeadLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_dead_letters (id, document_id, provider, action, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, util.NewID("dead"), d.DocumentID, d.Provider, d.Action, d.Attempts, d.LastError)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDeadLetters(ctx context.Context, documentID string) ([]DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, provider, action, attempts, last_error, failed_at
		FROM sync_dead_letters WHERE document_id=$1 ORDER BY failed_at DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.Provider, &d.Action, &d.Attempts, &d.LastError, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

// ─── Audit ───────────────────────────────────────────────────

func (s *PostgresStore) InsertAuditEvent(ctx context.Context, event AuditEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (event_type, actor_name, document_id, payload)
		VALUES ($1, $2, $3, $4)
	`, event.EventType, event.ActorName, event.DocumentID, payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
