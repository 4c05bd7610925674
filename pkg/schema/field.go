// Package schema defines the declarative field schemas that drive the
// document pipeline: a closed tagged variant over scalar, object, and array
// field shapes, entity schemas built from them, a lock-step walker over a
// schema tree and a data tree, and a registry of named field hooks.
package schema

// Kind tags the shape of a field. Scalar kinds coerce a single value;
// KindObject recurses into named child fields; KindArray applies the Items
// schema per element. KindMixed accepts any value unchanged.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindDate
	KindID
	KindMixed
	KindObject
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindID:
		return "id"
	case KindMixed:
		return "mixed"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	}
	return "unknown"
}

// ValidatorRef names a registered validator together with the error message
// reported when it fails. Message acts as a fallback; a validator may
// return a more specific one.
type ValidatorRef struct {
	Name    string
	Message string
}

// Field is one node of a schema tree. A schema tree is immutable once
// constructed; traversal never mutates it. Set and Get name registered
// transform hooks applied on the write and read paths.
type Field struct {
	Kind   Kind
	Fields map[string]*Field // child fields when Kind == KindObject
	Items  *Field            // element schema when Kind == KindArray

	Required    bool
	Default     interface{}
	DefaultFunc func() interface{}
	ReadOnly    bool
	Enum        []interface{}
	Validators  []ValidatorRef
	Lowercase   bool
	Trim        bool
	Index       bool
	LooseType   bool
	Set         string
	Get         string
}

// Scalar builds a leaf field of the given kind.
func Scalar(kind Kind) *Field {
	return &Field{Kind: kind}
}

// Object builds a composite field with named children.
func Object(fields map[string]*Field) *Field {
	return &Field{Kind: KindObject, Fields: fields}
}

// Array builds an array field whose elements follow the given schema.
func Array(items *Field) *Field {
	return &Field{Kind: KindArray, Items: items}
}
