package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "path":  {"type": "string"},
    "glob":  {"type": "string", "minLength": 1},
    "tool": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "command": {"type": "array", "items": {"type": "string"}, "minItems": 1},
        "args":    {"type": "array", "items": {"type": "string"}}
      }
    }
  },
  "properties": {
    "monitor": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workdir":         {"$ref": "#/definitions/path"},
        "spec_dir":        {"$ref": "#/definitions/path"},
        "spec_glob":       {"$ref": "#/definitions/glob"},
        "staging_dir":     {"$ref": "#/definitions/path"},
        "descriptor_glob": {"$ref": "#/definitions/glob"},
        "dep_dir":         {"$ref": "#/definitions/path"},
        "dep_glob":        {"$ref": "#/definitions/glob"},
        "source_glob":     {"$ref": "#/definitions/glob"},
        "output_dir":      {"$ref": "#/definitions/path"},
        "tools": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "spec_compiler": {"$ref": "#/definitions/tool"},
            "merger":        {"$ref": "#/definitions/tool"},
            "compiler":      {"$ref": "#/definitions/tool"}
          }
        }
      }
    },
    "instrument": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workdir":       {"$ref": "#/definitions/path"},
        "aspect_dir":    {"$ref": "#/definitions/path"},
        "aspect_glob":   {"$ref": "#/definitions/glob"},
        "dep_dir":       {"$ref": "#/definitions/path"},
        "dep_glob":      {"$ref": "#/definitions/glob"},
        "generated_dir": {"$ref": "#/definitions/path"},
        "aspect_subdir": {"$ref": "#/definitions/path"},
        "source_subdir": {"$ref": "#/definitions/path"}
      }
    },
    "process": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "timeout": {"type": "string"}
      }
    },
    "history": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "dsn": {"type": "string"}
      }
    }
  }
}`

var (
	compiledSchema *gojsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
)

func getSchema() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(configSchema))
	})
	return compiledSchema, compileErr
}

// ValidateSchema checks raw YAML against the config schema. It returns one
// description per violation, and an error only if the YAML cannot be read or
// the schema cannot be compiled.
func ValidateSchema(data []byte) ([]string, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting config to JSON: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return errs, nil
}
