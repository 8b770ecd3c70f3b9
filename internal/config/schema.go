package config

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	compileOnce sync.Once
	compiled    *jsonschemav5.Schema
	compileErr  error
)

// JSONSchema reflects the Config struct into a JSON Schema document,
// the same way internal/config/schema.go does in the teacher repo.
func JSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{FieldNameTag: "json", RequiredFromJSONSchemaTags: true}
	schema := r.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}

func compiledSchema() (*jsonschemav5.Schema, error) {
	compileOnce.Do(func() {
		raw, err := JSONSchema()
		if err != nil {
			compileErr = err
			return
		}
		c := jsonschemav5.NewCompiler()
		if err := c.AddResource("config.schema.json", bytes.NewReader(raw)); err != nil {
			compileErr = err
			return
		}
		compiled, compileErr = c.Compile("config.schema.json")
	})
	return compiled, compileErr
}

// ValidateDocument validates a decoded (any-typed) JSON document against
// the Config schema, returning every violation rather than stopping at
// the first one — each carries the failing field's JSON-Pointer path via
// ValidationError.InstanceLocation, mirroring
// internal/gateway/ws_schema.go's use of santhosh-tekuri/jsonschema/v5.
func ValidateDocument(doc any) []Violation {
	schema, err := compiledSchema()
	if err != nil {
		return []Violation{{Path: "", Message: "internal schema error: " + err.Error()}}
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	ve, ok := err.(*jsonschemav5.ValidationError)
	if !ok {
		return []Violation{{Path: "", Message: err.Error()}}
	}
	return flattenValidationErrors(ve)
}

// flattenValidationErrors walks the ValidationError tree (santhosh-tekuri
// nests child Causes) and returns one Violation per leaf, so a caller
// sees every violation instead of only the outermost summary.
// InstanceLocation is already a JSON-Pointer string.
func flattenValidationErrors(ve *jsonschemav5.ValidationError) []Violation {
	if len(ve.Causes) == 0 {
		return []Violation{{
			Path:    ve.InstanceLocation,
			Message: ve.Message,
		}}
	}
	var out []Violation
	for _, cause := range ve.Causes {
		out = append(out, flattenValidationErrors(cause)...)
	}
	return out
}
