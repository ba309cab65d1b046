package coord

import (
	"fmt"
	"strings"

	"propel/engine/internal/store"
)

// validDocTypes is the closed set of proposal document types rules may
// reference.
var validDocTypes = map[string]bool{
	"cover_letter":        true,
	"executive_summary":   true,
	"technical_volume":    true,
	"management_volume":   true,
	"past_performance":    true,
	"pricing_volume":      true,
	"staffing_plan":       true,
	"quality_plan":        true,
	"transition_plan":     true,
	"subcontracting_plan": true,
	"compliance_matrix":   true,
	"resume":              true,
	"org_chart":           true,
	"schedule":            true,
	"risk_register":       true,
}

var validTransforms = map[string]bool{
	TransformCopy:      true,
	TransformFormat:    true,
	TransformAggregate: true,
	TransformReference: true,
}

// ValidDocType reports whether a document type is in the known set.
func ValidDocType(docType string) bool {
	return validDocTypes[docType]
}

// ValidateRule checks a coordination rule before it is stored. A rule may
// not point a document type and field path at itself, since applying it
// would retrigger it.
func ValidateRule(rule store.CoordinationRule) error {
	if !validDocTypes[rule.SourceDocType] {
		return fmt.Errorf("invalid source document type %q", rule.SourceDocType)
	}
	if !validDocTypes[rule.TargetDocType] {
		return fmt.Errorf("invalid target document type %q", rule.TargetDocType)
	}
	if !validTransforms[rule.Transform] {
		return fmt.Errorf("invalid transform type %q", rule.Transform)
	}
	if strings.TrimSpace(rule.SourceFieldPath) == "" {
		return fmt.Errorf("source field path is required")
	}
	if strings.TrimSpace(rule.TargetFieldPath) == "" {
		return fmt.Errorf("target field path is required")
	}
	if rule.SourceDocType == rule.TargetDocType && rule.SourceFieldPath == rule.TargetFieldPath {
		return fmt.Errorf("source and target cannot be the same document type and field path")
	}
	return nil
}
