package sandbox

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// builtinSchemas compiles the argument schemas for the built-in tools.
// Arguments are validated before dispatch so a malformed payload never
// reaches the filesystem.
func builtinSchemas() (map[string]*gojsonschema.Schema, error) {
	raw := map[string]map[string]interface{}{
		ToolReadFile: {
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"path":      map[string]interface{}{"type": "string", "description": "File path relative to the project root"},
				"max_bytes": map[string]interface{}{"type": "number", "description": "Maximum bytes to read"},
			},
			"required": []string{"path"},
		},
		ToolWriteFile: {
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"path":    map[string]interface{}{"type": "string", "description": "File path relative to the project root"},
				"content": map[string]interface{}{"type": "string", "description": "File content"},
				"append":  map[string]interface{}{"type": "boolean", "description": "Append instead of truncate"},
			},
			"required": []string{"path", "content"},
		},
		ToolListDirectory: {
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]interface{}{
				"path": map[string]interface{}{"type": "string", "description": "Directory path relative to the project root"},
			},
		},
	}

	schemas := make(map[string]*gojsonschema.Schema, len(raw))
	for name, def := range raw {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for %s: %w", name, err)
		}
		schemas[name] = schema
	}
	return schemas, nil
}

// validateArgs checks tool arguments against a compiled schema.
func validateArgs(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid arguments: %v", msgs)
	}
	return nil
}
