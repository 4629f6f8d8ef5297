package keytracker

import "fmt"

// DuplicateKeyError is returned when a `_key` is registered twice, or when a
// lookup unexpectedly matches more than one stored object.
type DuplicateKeyError struct {
	Key string
	// Collection is "entities" or "relationships" when known.
	Collection string
}

func (e *DuplicateKeyError) Error() string {
	if e.Collection == "" {
		return fmt.Sprintf("duplicate _key detected (_key=%s)", e.Key)
	}
	return fmt.Sprintf("duplicate _key detected in %s (_key=%s)", e.Collection, e.Key)
}
