package rules

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/DukeRupert/designaudit/internal/domain"
	"github.com/DukeRupert/designaudit/internal/metrics"
)

//go:embed definitions/*.yaml
var definitionsFS embed.FS

//go:embed schema/rule_category.json
var categorySchema []byte

const schemaURL = "rule_category.json"

// DefaultDefinitions returns the built-in rule documents.
func DefaultDefinitions() fs.FS {
	sub, err := fs.Sub(definitionsFS, "definitions")
	if err != nil {
		panic(err)
	}
	return sub
}

// Loader reads rule category documents (YAML, JSON or TOML) from the top
// level of a file system and validates them against the category schema.
type Loader struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewLoader creates a loader over fsys.
func NewLoader(fsys fs.FS, logger *slog.Logger) *Loader {
	return &Loader{fsys: fsys, logger: logger}
}

// Load returns every well-formed category document, ordered by file name.
// Malformed documents are logged and skipped. An error is returned only when
// the file system itself cannot be read.
func (l *Loader) Load() ([]domain.RuleCategory, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read rule directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var docs []domain.RuleCategory
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isRuleDocument(entry.Name()) {
			continue
		}
		doc, err := l.loadFile(schema, entry.Name())
		if err != nil {
			l.logger.Warn("skipping rule document", "file", entry.Name(), "error", err)
			metrics.RuleDocumentsRejected.WithLabelValues(entry.Name()).Inc()
			continue
		}
		if prev, dup := seen[doc.Category]; dup {
			l.logger.Warn("skipping duplicate rule category",
				"file", entry.Name(),
				"category", doc.Category,
				"first_file", prev,
			)
			metrics.RuleDocumentsRejected.WithLabelValues(entry.Name()).Inc()
			continue
		}
		seen[doc.Category] = entry.Name()
		docs = append(docs, doc)
	}
	return docs, nil
}

func isRuleDocument(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml", ".json", ".toml":
		return true
	}
	return false
}

func (l *Loader) loadFile(schema *jsonschema.Schema, name string) (domain.RuleCategory, error) {
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return domain.RuleCategory{}, err
	}

	var raw interface{}
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	case ".toml":
		var m map[string]interface{}
		_, err = toml.Decode(string(data), &m)
		raw = m
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return domain.RuleCategory{}, fmt.Errorf("decode: %w", err)
	}

	// Round-trip through JSON so every format reaches the schema and the
	// struct decoder with the same shapes.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return domain.RuleCategory{}, fmt.Errorf("normalize: %w", err)
	}
	var instance interface{}
	if err := json.Unmarshal(normalized, &instance); err != nil {
		return domain.RuleCategory{}, fmt.Errorf("normalize: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return domain.RuleCategory{}, fmt.Errorf("schema: %w", err)
	}

	var doc domain.RuleCategory
	dec := json.NewDecoder(bytes.NewReader(normalized))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return domain.RuleCategory{}, fmt.Errorf("decode rules: %w", err)
	}
	if doc.Category == "" {
		doc.Category = strings.TrimSuffix(name, path.Ext(name))
	}
	return doc, nil
}

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(categorySchema)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}
