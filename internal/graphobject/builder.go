package graphobject

import (
	"fmt"
	"os"
)

// ValidationEnvVar toggles schema validation during entity construction.
const ValidationEnvVar = "ENABLE_GRAPH_OBJECT_SCHEMA_VALIDATION"

// EntityValidator validates a fully-formed entity. A nil or empty problem
// list means the entity is valid.
type EntityValidator interface {
	ValidateEntity(e *Entity) (problems []string, validationType string, err error)
}

// Builder constructs entities and optionally validates them against a
// schema before they ever reach a JobState.
type Builder struct {
	Validator EntityValidator
	// Force enables validation regardless of the environment.
	Force bool
}

// EntityOptions holds everything needed to build an entity.
type EntityOptions struct {
	Key         string
	Type        string
	Class       []string
	DisplayName string
	Source      any // stored as raw data named "default" when non-nil
	Properties  map[string]any
}

func (b *Builder) validationEnabled() bool {
	if b == nil || b.Validator == nil {
		return false
	}
	if b.Force {
		return true
	}
	v := os.Getenv(ValidationEnvVar)
	return v != "" && v != "0" && v != "false"
}

// NewEntity builds and, when enabled, validates an entity.
func (b *Builder) NewEntity(opts EntityOptions) (*Entity, error) {
	if err := CheckProperties(opts.Properties); err != nil {
		return nil, err
	}
	e := &Entity{
		Key:         opts.Key,
		Type:        opts.Type,
		Class:       append([]string(nil), opts.Class...),
		DisplayName: opts.DisplayName,
		Properties:  opts.Properties,
	}
	if opts.Source != nil {
		if err := e.AddRawData("default", opts.Source); err != nil {
			return nil, err
		}
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if !b.validationEnabled() {
		return e, nil
	}
	problems, validationType, err := b.Validator.ValidateEntity(e)
	if err != nil {
		return nil, fmt.Errorf("validating entity %q: %w", e.Key, err)
	}
	if len(problems) > 0 {
		return nil, &ValidationError{
			Key:            e.Key,
			Type:           e.Type,
			ValidationType: validationType,
			Problems:       problems,
		}
	}
	return e, nil
}
