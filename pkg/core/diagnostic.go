package core

import (
	"encoding/json"
	"fmt"
)

// Severity indicates the importance of a validation diagnostic.
type Severity int

// Severity levels for diagnostics.
const (
	// SeverityError indicates a violation that should be fixed.
	SeverityError Severity = iota
	// SeverityWarning indicates drift that should be reviewed.
	SeverityWarning
	// SeverityInfo indicates informational feedback.
	SeverityInfo
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string form.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "error":
		*s = SeverityError
	case "warning":
		*s = SeverityWarning
	case "info":
		*s = SeverityInfo
	default:
		return fmt.Errorf("unknown severity %q", name)
	}
	return nil
}

// Diagnostic codes emitted by validation.
const (
	// CodeMissingColumn flags a consumed column that its producing
	// relation does not expose.
	CodeMissingColumn = "missing-column"
	// CodeDocDrift flags documented columns that the computed output
	// no longer produces, or vice versa.
	CodeDocDrift = "doc-drift"
	// CodeUndocumentedColumn flags a produced column absent from the
	// model's documentation block.
	CodeUndocumentedColumn = "undocumented-column"
	// CodeUnresolvedRef flags a directive pointing at a model or
	// source the project does not define.
	CodeUnresolvedRef = "unresolved-ref"
	// CodeAnalysisFailed flags a model whose SQL could not be
	// rendered or resolved; siblings are unaffected.
	CodeAnalysisFailed = "analysis-failed"
)

// Diagnostic is a single validation finding against one model.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	// Model names the model the finding is attached to.
	Model string `json:"model"`
	// Column is the column involved, when the finding is column-scoped.
	Column string `json:"column,omitempty"`
	// Relation is the upstream relation involved, when relevant.
	Relation string `json:"relation,omitempty"`
	Message  string `json:"message"`
	FilePath string `json:"file_path,omitempty"`
}

// String formats the diagnostic for terminal output.
func (d Diagnostic) String() string {
	if d.Column != "" {
		return fmt.Sprintf("%s [%s] %s.%s: %s", d.Severity, d.Code, d.Model, d.Column, d.Message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", d.Severity, d.Code, d.Model, d.Message)
}

// CountBySeverity tallies diagnostics per severity level.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}

// HasErrors reports whether any diagnostic carries SeverityError.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
