package workflow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"archivist/internal/services"
)

//go:embed workflow.schema.json
var schemaJSON string

const schemaURL = "workflow.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func definitionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("load workflow schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// Parse decodes a YAML (or JSON) workflow document, validates it against the
// embedded schema, and builds the immutable model.
func Parse(data []byte) (*WorkFlow, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var doc document
	if err := decoder.Decode(&doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "decode", "", err)
	}
	if err := checkUniqueSteps(doc); err != nil {
		return nil, err
	}
	return doc.workflow(), nil
}

// LoadFile reads and parses one workflow file.
func LoadFile(path string) (*WorkFlow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	wf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return wf, nil
}

// LoadDir parses every *.yaml, *.yml and *.json file in dir, keyed by workflow
// id. Duplicate ids are rejected.
func LoadDir(dir string) (map[string]*WorkFlow, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]*WorkFlow{}, nil
		}
		return nil, fmt.Errorf("read workflows dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make(map[string]*WorkFlow, len(names))
	for _, name := range names {
		wf, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, dup := out[wf.ID()]; dup {
			return nil, services.Wrap(services.ErrValidation, "workflow", "load", fmt.Sprintf("duplicate workflow id %q in %s", wf.ID(), name), nil)
		}
		out[wf.ID()] = wf
	}
	return out, nil
}

func validateDocument(data []byte) error {
	schema, err := definitionSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "decode", "", err)
	}
	// The validator expects encoding/json value types.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "decode", "document is not JSON compatible", err)
	}
	var generic any
	if err := json.NewDecoder(bytes.NewReader(encoded)).Decode(&generic); err != nil && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, "workflow", "decode", "", err)
	}
	if err := schema.Validate(generic); err != nil {
		return services.Wrap(services.ErrValidation, "workflow", "validate", "", err)
	}
	return nil
}

func checkUniqueSteps(doc document) error {
	seen := make(map[string]struct{}, len(doc.Steps))
	for _, step := range doc.Steps {
		name := strings.TrimSpace(step.Name)
		if _, ok := seen[name]; ok {
			return services.Wrap(services.ErrValidation, "workflow", "validate", fmt.Sprintf("duplicate step name %q", name), nil)
		}
		seen[name] = struct{}{}
	}
	return nil
}
