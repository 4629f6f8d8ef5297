package graphobject

import (
	"fmt"
	"strings"
)

// GenerateRelationshipType builds a relationship _type from the class and
// the two endpoint types. Leading segments of toType that repeat fromType
// are dropped, keeping at least the last segment of toType:
//
//	aws_vpc + HAS + aws_lambda_function -> aws_vpc_has_lambda_function
func GenerateRelationshipType(class, fromType, toType string) string {
	fromParts := strings.Split(fromType, "_")
	toParts := strings.Split(toType, "_")

	i := 0
	for i < len(fromParts) && i < len(toParts)-1 && fromParts[i] == toParts[i] {
		i++
	}
	return fmt.Sprintf("%s_%s_%s", fromType, strings.ToLower(class), strings.Join(toParts[i:], "_"))
}

// GenerateRelationshipKey returns the conventional "from|class|to" key.
func GenerateRelationshipKey(class, fromKey, toKey string) string {
	return fromKey + "|" + strings.ToLower(class) + "|" + toKey
}

// DirectRelationshipOptions describe an explicit relationship between two
// entities that both exist in this run.
type DirectRelationshipOptions struct {
	Class      string
	From       *Entity
	To         *Entity
	Properties map[string]any
}

// NewDirectRelationship derives _key and _type from the endpoints. Explicit
// "_key" or "_type" entries in Properties override the generated values.
func NewDirectRelationship(opts DirectRelationshipOptions) (*Relationship, error) {
	if opts.From == nil || opts.To == nil {
		return nil, fmt.Errorf("%w: direct relationship needs both endpoints", ErrInvalidObject)
	}
	if opts.Class == "" {
		return nil, fmt.Errorf("%w: relationship class is required", ErrInvalidObject)
	}

	props, key, typ := splitOverrides(opts.Properties)
	if key == "" {
		key = GenerateRelationshipKey(opts.Class, opts.From.Key, opts.To.Key)
	}
	if typ == "" {
		typ = GenerateRelationshipType(opts.Class, opts.From.Type, opts.To.Type)
	}
	if err := CheckProperties(props); err != nil {
		return nil, err
	}

	return &Relationship{
		Key:           key,
		Type:          typ,
		Class:         strings.ToUpper(opts.Class),
		FromEntityKey: opts.From.Key,
		ToEntityKey:   opts.To.Key,
		Properties:    props,
	}, nil
}

// MappedRelationshipOptions describe a relationship to an entity that is
// resolved downstream by the target filter keys.
type MappedRelationshipOptions struct {
	Class              string
	Source             *Entity
	Direction          Direction
	Target             map[string]any
	TargetFilterKeys   [][]string
	SkipTargetCreation bool
	Properties         map[string]any
}

// NewMappedRelationship builds a relationship carrying a _mapping payload.
// The target entity must carry a "_type"; "_key" is used when present.
func NewMappedRelationship(opts MappedRelationshipOptions) (*Relationship, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: mapped relationship needs a source entity", ErrInvalidObject)
	}
	if opts.Class == "" {
		return nil, fmt.Errorf("%w: relationship class is required", ErrInvalidObject)
	}
	targetType, _ := opts.Target["_type"].(string)
	if targetType == "" {
		return nil, fmt.Errorf("%w: mapped relationship target needs a _type", ErrInvalidObject)
	}

	direction := opts.Direction
	if direction == "" {
		direction = DirectionForward
	}
	filterKeys := opts.TargetFilterKeys
	if len(filterKeys) == 0 {
		filterKeys = [][]string{{"_type", "_key"}}
	}

	props, key, typ := splitOverrides(opts.Properties)
	if typ == "" {
		if direction == DirectionForward {
			typ = GenerateRelationshipType(opts.Class, opts.Source.Type, targetType)
		} else {
			typ = GenerateRelationshipType(opts.Class, targetType, opts.Source.Type)
		}
	}
	if key == "" {
		targetRef := targetType
		if targetKey, _ := opts.Target["_key"].(string); targetKey != "" {
			targetRef = targetKey
		}
		if direction == DirectionForward {
			key = GenerateRelationshipKey(opts.Class, opts.Source.Key, targetRef)
		} else {
			key = GenerateRelationshipKey(opts.Class, targetRef, opts.Source.Key)
		}
	}
	if err := CheckProperties(props); err != nil {
		return nil, err
	}

	return &Relationship{
		Key:   key,
		Type:  typ,
		Class: strings.ToUpper(opts.Class),
		Mapping: &RelationshipMapping{
			RelationshipDirection: direction,
			SourceEntityKey:       opts.Source.Key,
			TargetFilterKeys:      filterKeys,
			TargetEntity:          opts.Target,
			SkipTargetCreation:    opts.SkipTargetCreation,
		},
		Properties: props,
	}, nil
}

func splitOverrides(in map[string]any) (props map[string]any, key, typ string) {
	if len(in) == 0 {
		return nil, "", ""
	}
	props = make(map[string]any, len(in))
	for k, v := range in {
		switch k {
		case "_key":
			key, _ = v.(string)
		case "_type":
			typ, _ = v.(string)
		default:
			props[k] = v
		}
	}
	if len(props) == 0 {
		props = nil
	}
	return props, key, typ
}
