// Package graphobject defines the entities and relationships an integration
// produces, their JSON wire shape, and helpers for building them.
//
// Both object kinds serialize as a single flat JSON object: the reserved
// underscore-prefixed fields sit next to free-form properties, e.g.
//
//	{"_key": "user:1", "_type": "acme_user", "_class": ["User"], "email": "a@b.c"}
package graphobject

import (
	"bytes"
	"fmt"

	"github.com/bytedance/sonic"
)

// jsonAPI mirrors encoding/json behaviour (sorted map keys) so chunk files
// are stable across runs.
var jsonAPI = sonic.ConfigStd

// RawData is one named raw-source payload attached to an entity.
type RawData struct {
	Name    string `json:"name"`
	RawData any    `json:"rawData"`
}

// Entity is a persisted graph vertex.
type Entity struct {
	Key         string
	Type        string
	Class       []string
	DisplayName string
	RawData     []RawData
	// Properties holds every non-reserved field. Values are scalars or
	// arrays of scalars.
	Properties map[string]any
}

var entityReserved = map[string]struct{}{
	"_key": {}, "_type": {}, "_class": {}, "displayName": {}, "_rawData": {},
}

type entityHeader struct {
	Key         string    `json:"_key"`
	Type        string    `json:"_type"`
	Class       classList `json:"_class"`
	DisplayName string    `json:"displayName,omitempty"`
	RawData     []RawData `json:"_rawData,omitempty"`
}

// MarshalJSON flattens the entity into a single JSON object.
func (e Entity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Properties)+5)
	for k, v := range e.Properties {
		out[k] = v
	}
	out["_key"] = e.Key
	out["_type"] = e.Type
	class := e.Class
	if class == nil {
		class = []string{}
	}
	out["_class"] = class
	if e.DisplayName != "" {
		out["displayName"] = e.DisplayName
	}
	if len(e.RawData) > 0 {
		out["_rawData"] = e.RawData
	}
	return jsonAPI.Marshal(out)
}

// UnmarshalJSON splits a flat JSON object into reserved fields and
// properties. Values are decoded in their canonical form (see Canonicalize).
func (e *Entity) UnmarshalJSON(data []byte) error {
	var header entityHeader
	if err := decodeAPI.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("decoding entity header: %w", err)
	}
	var all map[string]any
	if err := decodeAPI.Unmarshal(data, &all); err != nil {
		return fmt.Errorf("decoding entity properties: %w", err)
	}
	for i := range header.RawData {
		header.RawData[i].RawData = canonicalValue(header.RawData[i].RawData)
	}

	*e = Entity{
		Key:         header.Key,
		Type:        header.Type,
		Class:       []string(header.Class),
		DisplayName: header.DisplayName,
		RawData:     header.RawData,
		Properties:  canonicalProperties(stripReserved(all, entityReserved)),
	}
	return nil
}

// Validate checks the fields every entity must carry.
func (e *Entity) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: nil entity", ErrInvalidObject)
	case e.Key == "":
		return fmt.Errorf("%w: entity is missing _key", ErrInvalidObject)
	case e.Type == "":
		return fmt.Errorf("%w: entity %q is missing _type", ErrInvalidObject, e.Key)
	case len(e.Class) == 0:
		return fmt.Errorf("%w: entity %q is missing _class", ErrInvalidObject, e.Key)
	}
	return nil
}

// AddRawData attaches a named raw payload. Names are unique per entity.
func (e *Entity) AddRawData(name string, payload any) error {
	if _, ok := e.RawDataNamed(name); ok {
		return fmt.Errorf("%w: entity %q already has raw data named %q", ErrDuplicateRawData, e.Key, name)
	}
	e.RawData = append(e.RawData, RawData{Name: name, RawData: payload})
	return nil
}

// RawDataNamed returns the raw payload stored under name.
func (e *Entity) RawDataNamed(name string) (any, bool) {
	for _, rd := range e.RawData {
		if rd.Name == name {
			return rd.RawData, true
		}
	}
	return nil, false
}

// Property returns a free-form property value.
func (e *Entity) Property(name string) (any, bool) {
	v, ok := e.Properties[name]
	return v, ok
}

func stripReserved(all map[string]any, reserved map[string]struct{}) map[string]any {
	for k := range reserved {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

// classList decodes `_class` from either a single string or an array.
type classList []string

func (c *classList) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*c = nil
		return nil
	}
	var single string
	if err := jsonAPI.Unmarshal(data, &single); err == nil {
		*c = classList{single}
		return nil
	}
	var many []string
	if err := jsonAPI.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("_class must be a string or an array of strings: %w", err)
	}
	*c = many
	return nil
}
