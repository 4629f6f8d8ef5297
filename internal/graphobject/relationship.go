package graphobject

import (
	"fmt"
)

// Direction states which side of a mapped relationship the source entity is on.
type Direction string

const (
	DirectionForward Direction = "FORWARD"
	DirectionReverse Direction = "REVERSE"
)

// RelationshipMapping describes a relationship whose target is resolved
// downstream, outside this run.
type RelationshipMapping struct {
	RelationshipDirection Direction      `json:"relationshipDirection"`
	SourceEntityKey       string         `json:"sourceEntityKey"`
	TargetFilterKeys      [][]string     `json:"targetFilterKeys"`
	TargetEntity          map[string]any `json:"targetEntity"`
	SkipTargetCreation    bool           `json:"skipTargetCreation,omitempty"`
}

// Relationship is either explicit (From/To keys set) or mapped (Mapping set).
type Relationship struct {
	Key           string
	Type          string
	Class         string
	FromEntityKey string
	ToEntityKey   string
	Mapping       *RelationshipMapping
	DisplayName   string
	Properties    map[string]any
}

var relationshipReserved = map[string]struct{}{
	"_key": {}, "_type": {}, "_class": {}, "_fromEntityKey": {}, "_toEntityKey": {},
	"_mapping": {}, "displayName": {},
}

type relationshipHeader struct {
	Key           string               `json:"_key"`
	Type          string               `json:"_type"`
	Class         string               `json:"_class"`
	FromEntityKey string               `json:"_fromEntityKey,omitempty"`
	ToEntityKey   string               `json:"_toEntityKey,omitempty"`
	Mapping       *RelationshipMapping `json:"_mapping,omitempty"`
	DisplayName   string               `json:"displayName,omitempty"`
}

// IsMapped reports whether the relationship carries a mapping descriptor.
func (r *Relationship) IsMapped() bool {
	return r.Mapping != nil
}

// MarshalJSON flattens the relationship into a single JSON object.
func (r Relationship) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Properties)+7)
	for k, v := range r.Properties {
		out[k] = v
	}
	out["_key"] = r.Key
	out["_type"] = r.Type
	out["_class"] = r.Class
	if r.FromEntityKey != "" {
		out["_fromEntityKey"] = r.FromEntityKey
	}
	if r.ToEntityKey != "" {
		out["_toEntityKey"] = r.ToEntityKey
	}
	if r.Mapping != nil {
		out["_mapping"] = r.Mapping
	}
	if r.DisplayName != "" {
		out["displayName"] = r.DisplayName
	}
	return jsonAPI.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object into reserved fields and properties.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	var header relationshipHeader
	if err := decodeAPI.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("decoding relationship header: %w", err)
	}
	var all map[string]any
	if err := decodeAPI.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding relationship properties: %w", err)
	}
	if header.Mapping != nil && header.Mapping.TargetEntity != nil {
		header.Mapping.TargetEntity = canonicalProperties(header.Mapping.TargetEntity)
	}

	*r = Relationship{
		Key:           header.Key,
		Type:          header.Type,
		Class:         header.Class,
		FromEntityKey: header.FromEntityKey,
		ToEntityKey:   header.ToEntityKey,
		Mapping:       header.Mapping,
		DisplayName:   header.DisplayName,
		Properties:    canonicalProperties(stripReserved(all, relationshipReserved)),
	}
	return nil
}

// Validate checks the fields every relationship must carry.
func (r *Relationship) Validate() error {
	switch {
	case r == nil:
		return fmt.Errorf("%w: nil relationship", ErrInvalidObject)
	case r.Key == "":
		return fmt.Errorf("%w: relationship is missing _key", ErrInvalidObject)
	case r.Type == "":
		return fmt.Errorf("%w: relationship %q is missing _type", ErrInvalidObject, r.Key)
	case r.Class == "":
		return fmt.Errorf("%w: relationship %q is missing _class", ErrInvalidObject, r.Key)
	case r.Mapping == nil && (r.FromEntityKey == "" || r.ToEntityKey == ""):
		return fmt.Errorf("%w: relationship %q needs _fromEntityKey and _toEntityKey or a _mapping", ErrInvalidObject, r.Key)
	}
	return nil
}
