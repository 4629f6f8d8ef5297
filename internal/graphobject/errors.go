package graphobject

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidObject is returned when a required reserved field is missing.
	ErrInvalidObject = errors.New("invalid graph object")
	// ErrDuplicateRawData is returned when an entity already has raw data
	// under the requested name.
	ErrDuplicateRawData = errors.New("duplicate raw data name")
	// ErrInvalidProperty is returned for property values that are not a
	// scalar or an array of scalars.
	ErrInvalidProperty = errors.New("invalid property value")
)

// ValidationError reports schema validation failures for one entity.
type ValidationError struct {
	Key            string
	Type           string
	ValidationType string
	Problems       []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("entity %q (%s) failed %s validation: %s",
		e.Key, e.Type, e.ValidationType, strings.Join(e.Problems, "; "))
}
