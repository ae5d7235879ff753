package core

// ColumnDoc is one declared column in a documentation block.
type ColumnDoc struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ModelDocs is the declared documentation for a model: an ordered list
// of column names with free-text descriptions, loaded from the
// project's schema YAML files.
type ModelDocs struct {
	Description string      `json:"description,omitempty"`
	Columns     []ColumnDoc `json:"columns,omitempty"`
	// FilePath points at the YAML file the block was loaded from.
	FilePath string `json:"-"`
}

// ColumnNames returns the documented column names in declaration order.
func (d *ModelDocs) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		names[i] = c.Name
	}
	return names
}

// SourceTable is an external source table declared in the project's
// schema YAML: a relation the warehouse provides rather than a model.
type SourceTable struct {
	// Source is the source group name (e.g. "jaffle_shop").
	Source string `json:"source"`
	// Name is the table name within the group.
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Columns     []ColumnDoc `json:"columns,omitempty"`
	FilePath    string      `json:"-"`
}

// RelationName returns the qualified identifier the renderer substitutes
// for a source() directive: "source.table".
func (s *SourceTable) RelationName() string {
	return s.Source + "." + s.Name
}

// ColumnNames returns the declared column names in declaration order.
func (s *SourceTable) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}
