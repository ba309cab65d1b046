package coord

import (
	"context"
	"fmt"
	"log"
	"reflect"
	"strings"

	"propel/engine/internal/store"
)

// Store is the persistence surface the engine needs. *store.PostgresStore
// satisfies it.
type Store interface {
	GetDocument(ctx context.Context, documentID string) (store.Document, error)
	ListDocumentsByType(ctx context.Context, proposalID, docType, excludeID string) ([]store.Document, error)
	InsertRule(ctx context.Context, rule store.CoordinationRule) (string, error)
	DeactivateRule(ctx context.Context, ruleID string) error
	RulesForField(ctx context.Context, sourceFieldPath string) ([]store.CoordinationRule, error)
	AppendCascadeLog(ctx context.Context, entry store.CascadeLogEntry) error
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
}

// Versions is the slice of the version tracker the engine records target
// updates through.
type Versions interface {
	Latest(ctx context.Context, documentID string) (*store.DocumentVersion, error)
	Record(ctx context.Context, documentID string, snapshot map[string]any, source, createdBy string) (store.DocumentVersion, error)
}

// PreviewItem describes one target-field update a cascade would make.
type PreviewItem struct {
	RuleID          string `json:"ruleId"`
	RuleDescription string `json:"ruleDescription,omitempty"`
	DocumentID      string `json:"documentId"`
	DocumentTitle   string `json:"documentTitle"`
	TargetDocType   string `json:"targetDocType"`
	TargetFieldPath string `json:"targetFieldPath"`
	CurrentValue    any    `json:"currentValue"`
	NewValue        any    `json:"newValue"`
}

// ItemError reports one preview item that could not be applied.
type ItemError struct {
	DocumentID string `json:"documentId"`
	FieldPath  string `json:"fieldPath"`
	Err        string `json:"error"`
}

// ApplyResult summarizes a cascade application. Applied and Skipped carry
// document ids; Failed carries per-item errors. A partial failure leaves
// the other items' updates in place.
type ApplyResult struct {
	Applied []string    `json:"applied"`
	Skipped []string    `json:"skipped"`
	Failed  []ItemError `json:"failed,omitempty"`
}

type Engine struct {
	store    Store
	versions Versions
}

func NewEngine(s Store, v Versions) *Engine {
	return &Engine{store: s, versions: v}
}

// CreateRule validates and stores a coordination rule, returning its id.
func (e *Engine) CreateRule(ctx context.Context, rule store.CoordinationRule, actor string) (string, error) {
	rule.SourceFieldPath = strings.TrimSpace(rule.SourceFieldPath)
	rule.TargetFieldPath = strings.TrimSpace(rule.TargetFieldPath)
	if err := ValidateRule(rule); err != nil {
		return "", err
	}

	id, err := e.store.InsertRule(ctx, rule)
	if err != nil {
		return "", fmt.Errorf("create rule: %w", err)
	}
	e.audit(ctx, "rule.created", actor, "", map[string]any{
		"ruleId":    id,
		"transform": rule.Transform,
		"source":    rule.SourceDocType + "." + rule.SourceFieldPath,
		"target":    rule.TargetDocType + "." + rule.TargetFieldPath,
	})
	return id, nil
}

// DeactivateRule soft-deletes a rule; the row stays for the audit trail.
func (e *Engine) DeactivateRule(ctx context.Context, ruleID, actor string) error {
	if err := e.store.DeactivateRule(ctx, ruleID); err != nil {
		return err
	}
	e.audit(ctx, "rule.deactivated", actor, "", map[string]any{"ruleId": ruleID})
	return nil
}

// PreviewCascade computes, without writing anything, the target updates
// that would follow from setting the given field of the source document to
// newValue. Rules whose source type does not match the document are
// ignored; targets with no recorded version are skipped.
func (e *Engine) PreviewCascade(ctx context.Context, sourceDocID, fieldPath string, newValue any) ([]PreviewItem, error) {
	doc, err := e.store.GetDocument(ctx, sourceDocID)
	if err != nil {
		return nil, fmt.Errorf("load source document: %w", err)
	}

	rules, err := e.store.RulesForField(ctx, fieldPath)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	var items []PreviewItem
	for _, rule := range rules {
		if rule.SourceDocType != doc.DocType {
			continue
		}
		transformed := ApplyTransform(rule.Transform, newValue)

		targets, err := e.store.ListDocumentsByType(ctx, doc.ProposalID, rule.TargetDocType, sourceDocID)
		if err != nil {
			return nil, fmt.Errorf("load targets for rule %s: %w", rule.ID, err)
		}
		for _, target := range targets {
			latest, err := e.versions.Latest(ctx, target.ID)
			if err != nil {
				return nil, fmt.Errorf("load latest version of %s: %w", target.ID, err)
			}
			if latest == nil {
				continue
			}
			current, _ := GetPath(latest.Snapshot, rule.TargetFieldPath)

			description := ""
			if rule.Description != nil {
				description = *rule.Description
			}
			items = append(items, PreviewItem{
				RuleID:          rule.ID,
				RuleDescription: description,
				DocumentID:      target.ID,
				DocumentTitle:   target.Title,
				TargetDocType:   rule.TargetDocType,
				TargetFieldPath: rule.TargetFieldPath,
				CurrentValue:    current,
				NewValue:        transformed,
			})
		}
	}
	return items, nil
}

// ApplyCascade applies previewed items. Each item is independent: a target
// whose field already carries the new value is skipped, so re-applying the
// same cascade is a no-op, and one failing item does not block the rest.
// Every applied item records a new target version and a cascade log row.
func (e *Engine) ApplyCascade(ctx context.Context, items []PreviewItem, actor string) (ApplyResult, error) {
	var result ApplyResult
	for _, item := range items {
		applied, err := e.applyItem(ctx, item, actor)
		if err != nil {
			log.Printf("coord: apply %s.%s: %v", item.DocumentID, item.TargetFieldPath, err)
			result.Failed = append(result.Failed, ItemError{
				DocumentID: item.DocumentID,
				FieldPath:  item.TargetFieldPath,
				Err:        err.Error(),
			})
			continue
		}
		if applied {
			result.Applied = append(result.Applied, item.DocumentID)
		} else {
			result.Skipped = append(result.Skipped, item.DocumentID)
		}
	}

	e.audit(ctx, "cascade.applied", actor, "", map[string]any{
		"applied": len(result.Applied),
		"skipped": len(result.Skipped),
		"failed":  len(result.Failed),
	})
	return result, nil
}

func (e *Engine) applyItem(ctx context.Context, item PreviewItem, actor string) (bool, error) {
	latest, err := e.versions.Latest(ctx, item.DocumentID)
	if err != nil {
		return false, fmt.Errorf("load latest version: %w", err)
	}
	if latest == nil {
		return false, fmt.Errorf("document has no versions")
	}

	current, _ := GetPath(latest.Snapshot, item.TargetFieldPath)
	if valuesEqual(current, item.NewValue) {
		return false, nil
	}

	updated := SetPath(latest.Snapshot, item.TargetFieldPath, item.NewValue)
	if _, err := e.versions.Record(ctx, item.DocumentID, updated, store.SourcePropel, actor); err != nil {
		return false, fmt.Errorf("record version: %w", err)
	}

	if err := e.store.AppendCascadeLog(ctx, store.CascadeLogEntry{
		RuleID:     item.RuleID,
		DocumentID: item.DocumentID,
		FieldPath:  item.TargetFieldPath,
		OldValue:   current,
		NewValue:   item.NewValue,
		Actor:      actor,
	}); err != nil {
		return false, fmt.Errorf("append cascade log: %w", err)
	}
	return true, nil
}

// valuesEqual compares snapshot values with numeric widening, so an int
// written by a caller matches the float64 that comes back from JSONB.
func valuesEqual(a, b any) bool {
	if na, ok := asNumber(a); ok {
		if nb, ok := asNumber(b); ok {
			return na == nb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func (e *Engine) audit(ctx context.Context, eventType, actor, documentID string, payload map[string]any) {
	err := e.store.InsertAuditEvent(ctx, store.AuditEvent{
		EventType:  eventType,
		ActorName:  actor,
		DocumentID: documentID,
		Payload:    payload,
	})
	if err != nil {
		log.Printf("coord: audit %s: %v", eventType, err)
	}
}
