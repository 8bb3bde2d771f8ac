package api

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	schemaStart    = "start"
	schemaProgress = "progress"
	schemaFiles    = "files"
	schemaUpload   = "upload"
	schemaStats    = "stats"
	schemaHealth   = "health"
	schemaVenues   = "venues"
)

// schemaSet holds the compiled wire schemas, keyed by name
type schemaSet struct {
	schemas map[string]*gojsonschema.Schema
}

func loadSchemas() (*schemaSet, error) {
	set := &schemaSet{schemas: make(map[string]*gojsonschema.Schema)}
	for _, name := range []string{schemaStart, schemaProgress, schemaFiles, schemaUpload, schemaStats, schemaHealth, schemaVenues} {
		data, err := schemaFS.ReadFile("schemas/" + name + ".json")
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create schema %s: %w", name, err)
		}
		set.schemas[name] = schema
	}
	return set, nil
}

// validate checks body against the named schema
func (s *schemaSet) validate(name string, body []byte) error {
	schema, ok := s.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, name, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return fmt.Errorf("%w: %s: %s", ErrInvalidResponse, name, strings.Join(problems, "; "))
	}
	return nil
}
