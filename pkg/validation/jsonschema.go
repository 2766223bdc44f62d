package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrSchemaCompile marks a parameter block that is not a usable JSON schema.
var ErrSchemaCompile = errors.New("invalid parameter schema")

// CompileSchema compiles a decoded schema document (e.g. one parameter block of a template).
func CompileSchema(schema map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("parameters.json", strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}
	sch, err := compiler.Compile("parameters.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaCompile, err)
	}
	return sch, nil
}

// ValidateParameters validates params against one schema block.
// Values are normalized through JSON first so YAML- or Go-typed numbers validate the same as decoded request bodies.
func ValidateParameters(schema map[string]interface{}, params map[string]interface{}) error {
	sch, err := CompileSchema(schema)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode parameters: %w", err)
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to decode parameters: %w", err)
	}

	if err := sch.Validate(data); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Errorf("parameters failed validation: %v", validationErr)
		}
		return fmt.Errorf("parameters failed validation (unexpected error type): %w", err)
	}
	return nil
}

// MissingRequired returns the sorted names listed under "required" in any block
// that have no value in params.
func MissingRequired(blocks []map[string]interface{}, params map[string]interface{}) []string {
	seen := map[string]bool{}
	var missing []string
	for _, block := range blocks {
		for _, name := range requiredNames(block["required"]) {
			if seen[name] {
				continue
			}
			seen[name] = true
			if v, ok := params[name]; !ok || v == nil {
				missing = append(missing, name)
			}
		}
	}
	sort.Strings(missing)
	return missing
}

func requiredNames(v interface{}) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []interface{}:
		names := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}
