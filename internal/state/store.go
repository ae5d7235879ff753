// Package state persists analysis results between runs. A single
// SQLite database holds content-addressed render and lineage
// artifacts, the fingerprint state each model was last analyzed at,
// and an audit trail of analysis runs.
package state

import (
	"time"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// ArtifactKind selects which cache family an artifact row belongs to.
type ArtifactKind string

// Artifact kinds. Render artifacts are keyed by local fingerprint and
// hold a JSON-encoded RenderRecord; lineage artifacts are keyed by
// transitive fingerprint and hold a JSON-encoded LineageRecord.
const (
	ArtifactRender  ArtifactKind = "render"
	ArtifactLineage ArtifactKind = "lineage"
)

// RenderRecord is the payload of a render artifact: the rendered SQL
// of one model plus everything rendering discovered about it. A hit
// restores the full render outcome, so replay never re-expands the
// template.
type RenderRecord struct {
	Model        string           `json:"model"`
	SQL          string           `json:"sql"`
	Refs         []core.Reference `json:"refs,omitempty"`
	Materialized string           `json:"materialized,omitempty"`
	MacrosUsed   []string         `json:"macros_used,omitempty"`
	Disabled     bool             `json:"disabled,omitempty"`
}

// LineageRecord is the payload of a lineage artifact: everything
// column resolution computed for one model at one fingerprint.
type LineageRecord struct {
	Model        string             `json:"model"`
	Columns      []core.Column      `json:"columns"`
	ConsumedRefs []core.ConsumedRef `json:"consumed_refs,omitempty"`
	Relations    []string           `json:"relations,omitempty"`
}

// ModelState is the fingerprint snapshot of one model as of its last
// completed analysis. MacroHash stores the render environment hash the
// local fingerprint was computed under, which lets later runs tell a
// text edit apart from a macro or variable change.
type ModelState struct {
	Name             string
	Fingerprint      string
	LocalFingerprint string
	MacroHash        string
	AnalyzedAt       time.Time
}

// RunStatus tracks the lifecycle of an analysis run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded analysis run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	Models     int
	Errors     int
	Warnings   int
}
