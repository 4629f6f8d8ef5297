// Package schemavalidator validates entities against JSON schemas keyed by
// `_class`, using gojsonschema.
package schemavalidator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/graphjob/internal/graphobject"
	"github.com/xeipuuv/gojsonschema"
)

// BaseSchema applies to every entity regardless of class.
const BaseSchema = `{
  "type": "object",
  "required": ["_key", "_type", "_class"],
  "properties": {
    "_key":  {"type": "string", "minLength": 10, "maxLength": 1024},
    "_type": {"type": "string", "pattern": "^[A-Za-z0-9_-]+$"},
    "_class": {
      "anyOf": [
        {"type": "string"},
        {"type": "array", "items": {"type": "string"}, "minItems": 1}
      ]
    },
    "displayName": {"type": "string"}
  }
}`

// Validator holds compiled schemas. It is safe for concurrent use.
type Validator struct {
	mu      sync.RWMutex
	base    *gojsonschema.Schema
	classes map[string]*gojsonschema.Schema
}

var _ graphobject.EntityValidator = (*Validator)(nil)

// New compiles BaseSchema and returns a Validator with no class schemas.
func New() (*Validator, error) {
	base, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(BaseSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling base schema: %w", err)
	}
	return &Validator{base: base, classes: make(map[string]*gojsonschema.Schema)}, nil
}

// AddClassSchema registers the schema every entity of class must satisfy.
func (v *Validator) AddClassSchema(class, schemaJSON string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return fmt.Errorf("compiling schema for class %q: %w", class, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.classes[class] = schema
	return nil
}

// Classes returns the classes that have a schema.
func (v *Validator) Classes() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.classes))
	for c := range v.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// ValidateEntity checks e against the base schema and then against each
// of its classes in order, stopping at the first schema that reports
// problems. validationType names that schema.
func (v *Validator) ValidateEntity(e *graphobject.Entity) ([]string, string, error) {
	doc, err := e.MarshalJSON()
	if err != nil {
		return nil, "", fmt.Errorf("encoding entity: %w", err)
	}
	loader := gojsonschema.NewBytesLoader(doc)

	if problems, err := check(v.base, loader); err != nil || len(problems) > 0 {
		return problems, "base", err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, class := range e.Class {
		schema, ok := v.classes[class]
		if !ok {
			continue
		}
		if problems, err := check(schema, loader); err != nil || len(problems) > 0 {
			return problems, "class:" + class, err
		}
	}
	return nil, "", nil
}

func check(schema *gojsonschema.Schema, doc gojsonschema.JSONLoader) ([]string, error) {
	result, err := schema.Validate(doc)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return problems, nil
}
