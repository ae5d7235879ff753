// Package docs loads the project's schema YAML files, generates
// documentation skeletons, and serves project documentation over HTTP.
package docs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// SchemaFragment is the contents of one schema YAML file: model
// documentation blocks and source declarations, in file order.
type SchemaFragment struct {
	Models  []ModelBlock
	Sources []*core.SourceTable
}

// ModelBlock pairs a model name with its documentation.
type ModelBlock struct {
	Name string
	Docs *core.ModelDocs
}

// schemaFile mirrors the on-disk YAML layout. Version is accepted for
// compatibility with dbt-style schema files and otherwise ignored.
type schemaFile struct {
	Version int           `yaml:"version,omitempty"`
	Models  []modelEntry  `yaml:"models,omitempty"`
	Sources []sourceEntry `yaml:"sources,omitempty"`
}

type modelEntry struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Columns     []columnEntry `yaml:"columns,omitempty"`
}

type columnEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type sourceEntry struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description,omitempty"`
	Tables      []tableEntry `yaml:"tables,omitempty"`
}

type tableEntry struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Columns     []columnEntry `yaml:"columns,omitempty"`
}

// LoadSchemaFile reads and parses one schema YAML file.
func LoadSchemaFile(path string) (*SchemaFragment, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseSchema(content, path)
}

// ParseSchema parses one schema YAML document. Unknown fields are
// rejected so typos in hand-written files surface instead of silently
// dropping documentation. An empty document is an empty fragment.
func ParseSchema(content []byte, path string) (*SchemaFragment, error) {
	var file schemaFile
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, &SchemaError{File: path, Message: fmt.Sprintf("invalid YAML: %v", err)}
	}

	frag := &SchemaFragment{}
	for i, m := range file.Models {
		if m.Name == "" {
			return nil, &SchemaError{File: path, Message: fmt.Sprintf("model block %d is missing a name", i+1)}
		}
		docs := &core.ModelDocs{Description: m.Description, FilePath: path}
		for j, c := range m.Columns {
			if c.Name == "" {
				return nil, &SchemaError{File: path, Message: fmt.Sprintf("column %d of model %q is missing a name", j+1, m.Name)}
			}
			docs.Columns = append(docs.Columns, core.ColumnDoc{Name: c.Name, Description: c.Description})
		}
		frag.Models = append(frag.Models, ModelBlock{Name: m.Name, Docs: docs})
	}
	for i, src := range file.Sources {
		if src.Name == "" {
			return nil, &SchemaError{File: path, Message: fmt.Sprintf("source block %d is missing a name", i+1)}
		}
		for j, tbl := range src.Tables {
			if tbl.Name == "" {
				return nil, &SchemaError{File: path, Message: fmt.Sprintf("table %d of source %q is missing a name", j+1, src.Name)}
			}
			table := &core.SourceTable{
				Source:      src.Name,
				Name:        tbl.Name,
				Description: tbl.Description,
				FilePath:    path,
			}
			for k, c := range tbl.Columns {
				if c.Name == "" {
					return nil, &SchemaError{File: path, Message: fmt.Sprintf("column %d of table %q is missing a name", k+1, table.RelationName())}
				}
				table.Columns = append(table.Columns, core.ColumnDoc{Name: c.Name, Description: c.Description})
			}
			frag.Sources = append(frag.Sources, table)
		}
	}
	return frag, nil
}

// SchemaError reports a problem in one schema YAML file.
type SchemaError struct {
	File    string
	Message string
}

func (e *SchemaError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}
