package seed

import (
	"strings"

	"estatehub/pkg/domain"
)

// FieldKind is the expected JSON kind of a copied field.
type FieldKind int

const (
	// FieldString accepts JSON strings.
	FieldString FieldKind = iota
	// FieldID accepts strings or integral numbers and normalizes to a string.
	FieldID
	// FieldInt accepts integral numbers.
	FieldInt
	// FieldFloat accepts any number.
	FieldFloat
	// FieldBool accepts JSON booleans.
	FieldBool
	// FieldTime accepts RFC 3339 timestamps and normalizes them to UTC.
	FieldTime
)

// Field copies one snapshot field into a column.
type Field struct {
	Name     string
	Column   string // defaults to Name
	Kind     FieldKind
	Required bool
}

func (f Field) column() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Reference rewrites a snapshot foreign-key field into the store key of
// Target. Field is tried first, then Fallbacks in order, then Derive.
type Reference struct {
	Field     string
	Fallbacks []string
	// Derive computes the target source key from other fields when none of
	// the explicit fields are present.
	Derive   func(raw domain.RawRecord) (string, bool)
	Column   string
	Target   domain.EntityType
	Required bool
	// Numeric allows integral snapshot ids; otherwise only strings resolve.
	Numeric bool
	// Deferred references are skipped while loading and back-filled by the
	// patch pass once every type has loaded. They may point at later types.
	Deferred bool
}

// KeyShape names the snapshot fields forming one source key. Multi-field
// shapes are joined with "|".
type KeyShape []string

// KeyOf is shorthand for a single-field KeyShape.
func KeyOf(fields ...string) KeyShape { return KeyShape(fields) }

func (k KeyShape) String() string { return strings.Join(k, "|") }

// ShapeFunc derives or folds columns that plain field copies cannot express.
type ShapeFunc func(rec *domain.Record, raw domain.RawRecord, tr *Transformer) error

// PatchFunc returns extra columns written during the patch pass for a record
// already inserted.
type PatchFunc func(raw domain.RawRecord, reg Resolver) ([]domain.Column, error)

// EntityType describes how one kind of snapshot record is loaded.
type EntityType struct {
	Name       domain.EntityType
	Batch      string // object name, defaults to Name + ".json"
	Table      string
	Keys       domain.KeyStrategy
	Fields     []Field
	References []Reference
	SourceKeys []KeyShape
	Shape      ShapeFunc
	Patch      PatchFunc
}

// BatchName returns the snapshot object holding this type's records.
func (t EntityType) BatchName() string {
	if t.Batch != "" {
		return t.Batch
	}
	return string(t.Name) + ".json"
}

// NeedsPatch reports whether the type takes part in the patch pass.
func (t EntityType) NeedsPatch() bool {
	if t.Patch != nil {
		return true
	}
	for _, ref := range t.References {
		if ref.Deferred {
			return true
		}
	}
	return false
}

// SourceKeyValues returns the source keys raw registers under. Shapes with
// a missing part are skipped.
func (t EntityType) SourceKeyValues(raw domain.RawRecord) ([]string, error) {
	var out []string
	for _, shape := range t.SourceKeys {
		parts := make([]string, 0, len(shape))
		for _, field := range shape {
			v, ok, err := keyString(raw[field], true)
			if err != nil {
				return nil, malformed(err, "source key "+field)
			}
			if !ok {
				parts = nil
				break
			}
			parts = append(parts, v)
		}
		if len(parts) > 0 {
			out = append(out, strings.Join(parts, "|"))
		}
	}
	return out, nil
}
