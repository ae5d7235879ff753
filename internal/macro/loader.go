// Package macro loads project macro definitions from the macros
// directory. Each macros/*.sql file may declare any number of
// {% macro name(params) %} body {% endmacro %} blocks; the bodies are
// ordinary template text and may call other macros.
package macro

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/erikmunkby/dbt-toolbox/internal/template"
	"github.com/erikmunkby/dbt-toolbox/pkg/core"
)

// Loader scans a directory for .sql files and loads their macro blocks.
type Loader struct {
	dir string
}

// NewLoader creates a new macro loader for the specified directory.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Set is the loaded macro collection for a project. Hash changes
// whenever any macro definition changes, which invalidates every
// macro-using model downstream.
type Set struct {
	// Macros maps macro name to its definition.
	Macros map[string]*template.Macro

	// Hash is a deterministic digest over all macro sources, sorted by
	// macro name.
	Hash string

	// Errors lists per-file problems. A file with any problem
	// contributes no macros, only errors; loading continues with the
	// remaining files.
	Errors []*LoadError
}

// Load scans the macro directory and loads all .sql files. A missing
// directory yields an empty set. Malformed files are collected into
// Set.Errors rather than failing the load.
func (l *Loader) Load() (*Set, error) {
	set := &Set{Macros: make(map[string]*template.Macro)}

	info, err := os.Stat(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			set.Hash = set.computeHash()
			return set, nil
		}
		return nil, fmt.Errorf("failed to access macros directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("macros path is not a directory: %s", l.dir)
	}

	// Glob returns sorted paths, so duplicate handling is stable.
	files, err := filepath.Glob(filepath.Join(l.dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan macros directory: %w", err)
	}

	for _, file := range files {
		macros, loadErr := l.loadFile(file)
		if loadErr != nil {
			set.Errors = append(set.Errors, loadErr)
			continue
		}
		for _, m := range macros {
			if existing, ok := set.Macros[m.Name]; ok {
				set.Errors = append(set.Errors, &LoadError{
					File:    file,
					Message: fmt.Sprintf("macro %q already defined in %s", m.Name, filepath.Base(existing.File)),
				})
				continue
			}
			set.Macros[m.Name] = m
		}
	}

	set.Hash = set.computeHash()
	return set, nil
}

// loadFile parses one macro file into its definitions. The first
// problem aborts the file: a broken file contributes no macros, and
// its callers later fail with unresolved references instead of
// rendering against a half-loaded definition.
func (l *Loader) loadFile(path string) ([]*template.Macro, *LoadError) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}
	}

	// Positions inside the file are line:col; LoadError carries the
	// file name.
	tokens, err := template.NewLexer(string(content), "").Tokenize()
	if err != nil {
		return nil, &LoadError{File: path, Message: err.Error()}
	}

	var macros []*template.Macro
	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		switch tok.Type {
		case template.TokenEOF:
			return macros, nil

		case template.TokenComment:
			i++

		case template.TokenText:
			if strings.TrimSpace(tok.Value) != "" {
				return nil, &LoadError{File: path, Message: posMsg(tok, "text outside a macro block")}
			}
			i++

		case template.TokenExpr:
			return nil, &LoadError{File: path, Message: posMsg(tok, "expression outside a macro block")}

		case template.TokenStmt:
			m, next, loadErr := l.scanMacro(path, tokens, i)
			if loadErr != nil {
				return nil, loadErr
			}
			macros = append(macros, m)
			i = next
		}
	}
	return macros, nil
}

// scanMacro assembles one macro block starting at the {% macro %}
// statement at tokens[i]. It returns the macro and the index just past
// the {% endmacro %}.
func (l *Loader) scanMacro(path string, tokens []template.Token, i int) (*template.Macro, int, *LoadError) {
	header := tokens[i]
	if word, _, _ := strings.Cut(header.Value, " "); word != "macro" {
		return nil, 0, &LoadError{File: path, Message: posMsg(header, fmt.Sprintf("unexpected statement %q outside a macro block", word))}
	}

	name, params, err := template.ParseMacroHeader(header.Value, header.Pos)
	if err != nil {
		return nil, 0, &LoadError{File: path, Message: err.Error()}
	}

	var body []template.Token
	j := i + 1
	for {
		tok := tokens[j]
		if tok.Type == template.TokenEOF {
			return nil, 0, &LoadError{File: path, Message: posMsg(header, fmt.Sprintf("macro %q is missing {%% endmacro %%}", name))}
		}
		if tok.Type == template.TokenStmt {
			if tok.Value == "endmacro" {
				j++
				break
			}
			if word, _, _ := strings.Cut(tok.Value, " "); word == "macro" {
				return nil, 0, &LoadError{File: path, Message: posMsg(header, fmt.Sprintf("macro %q is missing {%% endmacro %%}", name))}
			}
			return nil, 0, &LoadError{File: path, Message: posMsg(tok, fmt.Sprintf("unsupported statement %q in macro %q", tok.Value, name))}
		}
		body = append(body, tok)
		j++
	}

	tmpl, err := template.Parse(body, path)
	if err != nil {
		return nil, 0, &LoadError{File: path, Message: err.Error()}
	}

	return &template.Macro{
		Name:   name,
		File:   path,
		Params: params,
		Body:   tmpl,
		Source: canonicalSource(header, body),
	}, j, nil
}

// canonicalSource reconstructs a macro definition from its tokens in a
// whitespace-normalized form. Any material edit to the definition
// changes this text, and with it the macro-set hash.
func canonicalSource(header template.Token, body []template.Token) string {
	var b strings.Builder
	b.WriteString("{% ")
	b.WriteString(header.Value)
	b.WriteString(" %}")
	for _, tok := range body {
		switch tok.Type {
		case template.TokenText:
			b.WriteString(tok.Value)
		case template.TokenExpr:
			b.WriteString("{{ ")
			b.WriteString(tok.Value)
			b.WriteString(" }}")
		case template.TokenComment:
			b.WriteString("{# ")
			b.WriteString(tok.Value)
			b.WriteString(" #}")
		}
	}
	b.WriteString("{% endmacro %}")
	return b.String()
}

// computeHash digests all loaded macro sources, sorted by macro name.
func (s *Set) computeHash() string {
	names := make([]string, 0, len(s.Macros))
	for name := range s.Macros {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)*2)
	for _, name := range names {
		parts = append(parts, name, s.Macros[name].Source)
	}
	return core.HashStrings(parts)
}

func posMsg(tok template.Token, msg string) string {
	return fmt.Sprintf("%d:%d: %s", tok.Pos.Line, tok.Pos.Column, msg)
}

// LoadError represents an error loading a macro file.
type LoadError struct {
	File    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("macros/%s: %s", filepath.Base(e.File), e.Message)
}
