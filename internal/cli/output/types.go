package output

import "github.com/erikmunkby/dbt-toolbox/pkg/core"

// AnalyzeOutput is the JSON payload of the analyze command.
type AnalyzeOutput struct {
	RunID       string            `json:"run_id"`
	Models      int               `json:"models"`
	Sources     int               `json:"sources"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
	Diagnostics []core.Diagnostic `json:"diagnostics"`
	Failures    []AnalyzeFailure  `json:"failures,omitempty"`
	Cache       CacheStats        `json:"cache"`
	Duration    string            `json:"duration"`
}

// AnalyzeFailure records a model whose analysis stopped with an error.
type AnalyzeFailure struct {
	Model   string `json:"model"`
	Message string `json:"message"`
}

// CacheStats reports cache effectiveness for one run.
type CacheStats struct {
	RenderHits    int `json:"render_hits"`
	RenderMisses  int `json:"render_misses"`
	LineageHits   int `json:"lineage_hits"`
	LineageMisses int `json:"lineage_misses"`
}

// RenderOutput is the JSON payload of the render command.
type RenderOutput struct {
	Model string `json:"model"`
	SQL   string `json:"sql"`
}

// LineageOutput is the JSON payload of the lineage command.
type LineageOutput struct {
	Model      string          `json:"model"`
	Columns    []LineageColumn `json:"columns"`
	Upstream   []string        `json:"upstream,omitempty"`
	Downstream []string        `json:"downstream,omitempty"`
}

// LineageColumn is one output column with the relation columns it
// draws from.
type LineageColumn struct {
	Name       string   `json:"name"`
	Transform  string   `json:"transform"`
	Function   string   `json:"function,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Unresolved bool     `json:"unresolved,omitempty"`
}

// DAGOutput is the JSON payload of the dag command.
type DAGOutput struct {
	Levels      []DAGLevel `json:"levels"`
	TotalModels int        `json:"total_models"`
	TotalEdges  int        `json:"total_edges"`
}

// DAGLevel groups models that can build concurrently.
type DAGLevel struct {
	Level  int       `json:"level"`
	Models []DAGNode `json:"models"`
}

// DAGNode is one model with its direct graph neighbors.
type DAGNode struct {
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
	UsedBy    []string `json:"used_by,omitempty"`
}

// SettingsOutput is the JSON payload of the settings command.
type SettingsOutput struct {
	ProjectRoot string         `json:"project_root"`
	ConfigFile  string         `json:"config_file,omitempty"`
	Settings    []SettingEntry `json:"settings"`
}

// SettingEntry is one effective setting with where its value came from.
type SettingEntry struct {
	Key      string `json:"key"`
	Value    any    `json:"value"`
	Source   string `json:"source"`
	Location string `json:"location,omitempty"`
}
