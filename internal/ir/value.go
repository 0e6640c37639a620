package ir

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"
)

// Value is a sealed interface representing document values.
// Only the types declared in this file implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
}

// Null represents a BSON null.
type Null struct{}

func (Null) irValue() {}

// String represents a UTF-8 string.
type String string

func (String) irValue() {}

// Int represents a 64-bit integer (int32 and int64 are not distinguished).
type Int int64

func (Int) irValue() {}

// Float represents a double.
type Float float64

func (Float) irValue() {}

// Bool represents a boolean.
type Bool bool

func (Bool) irValue() {}

// Timestamp represents a UTC datetime.
type Timestamp time.Time

func (Timestamp) irValue() {}

// Time returns the timestamp as a time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// Duration represents an interval.
type Duration time.Duration

func (Duration) irValue() {}

// Decimal represents an arbitrary-precision decimal (decimal128 on the wire).
// The wrapped apd.Decimal is never mutated after construction.
type Decimal struct {
	d *apd.Decimal
}

func (Decimal) irValue() {}

// ParseDecimal parses a decimal string such as "3.14" or "-1E+5".
func ParseDecimal(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return Decimal{d: d}, nil
}

// MustDecimal is like ParseDecimal but panics on error.
// Use only in tests or with constant input.
func MustDecimal(s string) Decimal {
	d, err := ParseDecimal(s)
	if err != nil {
		panic(err)
	}
	return d
}

// String returns the decimal in scientific-free notation when possible.
func (d Decimal) String() string {
	if d.d == nil {
		return "0"
	}
	return d.d.Text('f')
}

// Apd returns a copy of the underlying decimal.
func (d Decimal) Apd() *apd.Decimal {
	out := new(apd.Decimal)
	if d.d != nil {
		out.Set(d.d)
	}
	return out
}

// ObjectID represents a 12-byte MongoDB ObjectId.
type ObjectID [12]byte

func (ObjectID) irValue() {}

// Hex returns the 24-character hex form.
func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:])
}

// ParseObjectID parses a 24-character hex ObjectId.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != 24 {
		return id, fmt.Errorf("objectid %q: want 24 hex characters", s)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("objectid %q: %w", s, err)
	}
	return id, nil
}

// UUID represents a UUID (binary subtype 4 on the wire).
type UUID uuid.UUID

func (UUID) irValue() {}

// String returns the canonical hyphenated form.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

// Binary represents opaque binary data.
type Binary []byte

func (Binary) irValue() {}

// Array represents an ordered list of values.
type Array []Value

func (Array) irValue() {}

// Element is one key/value entry of a Document.
type Element struct {
	Key   string
	Value Value
}

// Document represents an ordered set of key/value elements.
// Keys are expected to be unique; Set replaces in place.
type Document []Element

func (Document) irValue() {}

// E is a shorthand for Element for ergonomic construction.
// Example: D(E("status", String("active")), E("n", Int(5)))
func E(key string, value Value) Element {
	return Element{Key: key, Value: value}
}

// D builds a Document from elements.
func D(elems ...Element) Document {
	if elems == nil {
		return Document{}
	}
	return Document(elems)
}

// A builds an Array from values.
func A(vals ...Value) Array {
	if vals == nil {
		return Array{}
	}
	return Array(vals)
}

// Get returns the value stored under key.
func (d Document) Get(key string) (Value, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether key is present.
func (d Document) Has(key string) bool {
	_, ok := d.Get(key)
	return ok
}

// Keys returns the keys in document order.
func (d Document) Keys() []string {
	keys := make([]string, len(d))
	for i, e := range d {
		keys[i] = e.Key
	}
	return keys
}

// Set returns a new document with key set to value. An existing key keeps its
// position; a new key is appended. The receiver is not modified.
func (d Document) Set(key string, value Value) Document {
	out := make(Document, 0, len(d)+1)
	replaced := false
	for _, e := range d {
		if e.Key == key {
			out = append(out, Element{Key: key, Value: value})
			replaced = true
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, Element{Key: key, Value: value})
	}
	return out
}

// Without returns a new document with key removed.
func (d Document) Without(key string) Document {
	out := make(Document, 0, len(d))
	for _, e := range d {
		if e.Key != key {
			out = append(out, e)
		}
	}
	return out
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Document:
		return val.Clone()
	case Binary:
		out := make(Binary, len(val))
		copy(out, val)
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for i, e := range d {
		out[i] = Element{Key: e.Key, Value: Clone(e.Value)}
	}
	return out
}

// TypeName returns the BSON type alias of v (as used by $type).
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "long"
	case Float:
		return "double"
	case Bool:
		return "bool"
	case Timestamp:
		return "date"
	case Duration:
		return "duration"
	case Decimal:
		return "decimal"
	case ObjectID:
		return "objectId"
	case UUID, Binary:
		return "binData"
	case Array:
		return "array"
	case Document:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
