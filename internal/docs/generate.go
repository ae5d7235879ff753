package docs

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// GenerateSchema renders schema YAML for the given models, merging
// computed columns with existing documentation. Computed column order
// wins; descriptions of columns already documented are carried over,
// and documented columns the model no longer produces are dropped.
func GenerateSchema(models []*core.Model) ([]byte, error) {
	file := schemaFile{}
	for _, m := range models {
		entry := modelEntry{Name: m.Name}
		existing := map[string]string{}
		if m.Docs != nil {
			entry.Description = m.Docs.Description
			for _, c := range m.Docs.Columns {
				existing[c.Name] = c.Description
			}
		}
		for _, col := range m.Columns {
			entry.Columns = append(entry.Columns, columnEntry{
				Name:        col.Name,
				Description: existing[col.Name],
			})
		}
		file.Models = append(file.Models, entry)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&file); err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}
	return buf.Bytes(), nil
}
