package ir

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fastjson"
	"golang.org/x/text/unicode/norm"
)

// Extended JSON wrapper keys.
const (
	extDate          = "$date"
	extNumberDecimal = "$numberDecimal"
	extNumberLong    = "$numberLong"
	extNumberDouble  = "$numberDouble"
	extOID           = "$oid"
	extUUID          = "$uuid"
	extBinary        = "$binary"
	extDuration      = "$duration"
)

var parserPool fastjson.ParserPool

// DecodeError reports malformed JSON or Extended JSON input.
type DecodeError struct {
	Path    string // dotted location of the failure ("" for the root)
	Message string
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return "decode: " + e.Message
	}
	return fmt.Sprintf("decode %s: %s", e.Path, e.Message)
}

// ParseJSON decodes a JSON text into a Value, keeping object key order and
// resolving Extended JSON wrappers into typed scalars.
func ParseJSON(data []byte) (Value, error) {
	p := parserPool.Get()
	defer parserPool.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, &DecodeError{Message: err.Error()}
	}
	// Values produced by fastjson are only valid until the parser is reused,
	// so conversion must finish before returning it to the pool.
	return fromFast(v, "")
}

// ParseDocument decodes a JSON object into a Document.
func ParseDocument(data []byte) (Document, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(Document)
	if !ok {
		return nil, &DecodeError{Message: fmt.Sprintf("expected object, got %s", TypeName(v))}
	}
	return doc, nil
}

// ParseDocuments decodes a JSON array of objects.
func ParseDocuments(data []byte) ([]Document, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, err
	}
	arr, ok := v.(Array)
	if !ok {
		return nil, &DecodeError{Message: fmt.Sprintf("expected array, got %s", TypeName(v))}
	}
	docs := make([]Document, len(arr))
	for i, elem := range arr {
		doc, ok := elem.(Document)
		if !ok {
			return nil, &DecodeError{Path: strconv.Itoa(i), Message: fmt.Sprintf("expected object, got %s", TypeName(elem))}
		}
		docs[i] = doc
	}
	return docs, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func fromFast(v *fastjson.Value, path string) (Value, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return Null{}, nil
	case fastjson.TypeTrue:
		return Bool(true), nil
	case fastjson.TypeFalse:
		return Bool(false), nil
	case fastjson.TypeString:
		return String(v.GetStringBytes()), nil
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, &DecodeError{Path: path, Message: err.Error()}
		}
		return Float(f), nil
	case fastjson.TypeArray:
		items, _ := v.Array()
		arr := make(Array, len(items))
		for i, item := range items {
			elem, err := fromFast(item, joinPath(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			arr[i] = elem
		}
		return arr, nil
	case fastjson.TypeObject:
		obj, _ := v.Object()
		doc := make(Document, 0, obj.Len())
		var firstErr error
		obj.Visit(func(key []byte, item *fastjson.Value) {
			if firstErr != nil {
				return
			}
			k := string(key)
			elem, err := fromFast(item, joinPath(path, k))
			if err != nil {
				firstErr = err
				return
			}
			doc = append(doc, Element{Key: k, Value: elem})
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return resolveExtended(doc, path)
	default:
		return nil, &DecodeError{Path: path, Message: fmt.Sprintf("unsupported JSON type %s", v.Type())}
	}
}

// resolveExtended turns single-key Extended JSON wrappers into typed scalars.
// Any other document is returned unchanged.
func resolveExtended(doc Document, path string) (Value, error) {
	if len(doc) != 1 {
		return doc, nil
	}
	key, raw := doc[0].Key, doc[0].Value
	fail := func(format string, args ...any) (Value, error) {
		return nil, &DecodeError{Path: joinPath(path, key), Message: fmt.Sprintf(format, args...)}
	}

	switch key {
	case extDate:
		switch val := raw.(type) {
		case String:
			t, err := time.Parse(time.RFC3339Nano, string(val))
			if err != nil {
				return fail("invalid date: %v", err)
			}
			return Timestamp(t.UTC()), nil
		case Int:
			return Timestamp(time.UnixMilli(int64(val)).UTC()), nil
		case Document:
			s, ok := val.Get(extNumberLong)
			if str, isStr := s.(String); ok && isStr {
				ms, err := strconv.ParseInt(string(str), 10, 64)
				if err != nil {
					return fail("invalid date: %v", err)
				}
				return Timestamp(time.UnixMilli(ms).UTC()), nil
			}
		}
		return fail("invalid date wrapper")
	case extNumberDecimal:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		d, err := ParseDecimal(string(s))
		if err != nil {
			return fail("%v", err)
		}
		return d, nil
	case extNumberLong:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		n, err := strconv.ParseInt(string(s), 10, 64)
		if err != nil {
			return fail("%v", err)
		}
		return Int(n), nil
	case extNumberDouble:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		f, err := parseDouble(string(s))
		if err != nil {
			return fail("%v", err)
		}
		return Float(f), nil
	case extOID:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		id, err := ParseObjectID(string(s))
		if err != nil {
			return fail("%v", err)
		}
		return id, nil
	case extUUID:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		u, err := uuid.Parse(string(s))
		if err != nil {
			return fail("%v", err)
		}
		return UUID(u), nil
	case extBinary:
		inner, ok := raw.(Document)
		if !ok {
			return fail("expected object")
		}
		b64, ok := inner.Get("base64")
		s, isStr := b64.(String)
		if !ok || !isStr {
			return fail("missing base64")
		}
		data, err := base64.StdEncoding.DecodeString(string(s))
		if err != nil {
			return fail("%v", err)
		}
		if sub, ok := inner.Get("subType"); ok && sub == String("04") && len(data) == 16 {
			var u uuid.UUID
			copy(u[:], data)
			return UUID(u), nil
		}
		return Binary(data), nil
	case extDuration:
		s, ok := raw.(String)
		if !ok {
			return fail("expected string")
		}
		d, err := time.ParseDuration(string(s))
		if err != nil {
			return fail("%v", err)
		}
		return Duration(d), nil
	}
	return doc, nil
}

func parseDouble(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "Infinity":
		return math.Inf(1), nil
	case "-Infinity":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}

// MarshalJSON encodes v as compact relaxed Extended JSON.
// Document key order is preserved, HTML characters are not escaped and
// strings are written byte for byte as they were decoded.
func MarshalJSON(v Value) ([]byte, error) {
	return marshal(v, false)
}

// marshal encodes v; with nfc set every string and key is NFC normalized
// first, which is the form identities are hashed over.
func marshal(v Value, nfc bool) ([]byte, error) {
	w := jsonWriter{nfc: nfc}
	if err := w.value(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

type jsonWriter struct {
	buf bytes.Buffer
	nfc bool
}

// MustMarshalJSON is like MarshalJSON but panics on error.
// Use only in tests or when the value is known to be valid.
func MustMarshalJSON(v Value) []byte {
	data, err := MarshalJSON(v)
	if err != nil {
		panic(err)
	}
	return data
}

// MarshalIndent encodes v like MarshalJSON and then indents the result.
func MarshalIndent(v Value, indent string) ([]byte, error) {
	data, err := MarshalJSON(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// MarshalStages encodes a stage list as a JSON array.
func MarshalStages(stages []Document) ([]byte, error) {
	arr := make(Array, len(stages))
	for i, s := range stages {
		arr[i] = s
	}
	return MarshalJSON(arr)
}

func (w *jsonWriter) value(v Value) error {
	buf := &w.buf
	switch val := v.(type) {
	case nil, Null:
		buf.WriteString("null")
	case String:
		return w.quote(string(val))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Float:
		writeFloat(buf, float64(val))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Timestamp:
		buf.WriteString(`{"$date":`)
		_ = w.quote(val.Time().UTC().Format(time.RFC3339Nano))
		buf.WriteByte('}')
	case Duration:
		buf.WriteString(`{"$duration":`)
		_ = w.quote(time.Duration(val).String())
		buf.WriteByte('}')
	case Decimal:
		buf.WriteString(`{"$numberDecimal":`)
		_ = w.quote(val.String())
		buf.WriteByte('}')
	case ObjectID:
		buf.WriteString(`{"$oid":"`)
		buf.WriteString(val.Hex())
		buf.WriteString(`"}`)
	case UUID:
		buf.WriteString(`{"$uuid":"`)
		buf.WriteString(val.String())
		buf.WriteString(`"}`)
	case Binary:
		buf.WriteString(`{"$binary":{"base64":"`)
		buf.WriteString(base64.StdEncoding.EncodeToString(val))
		buf.WriteString(`","subType":"00"}}`)
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := w.value(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Document:
		buf.WriteByte('{')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := w.quote(e.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := w.value(e.Value); err != nil {
				return fmt.Errorf("value for key %q: %w", e.Key, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown Value type: %T", v)
	}
	return nil
}

func writeFloat(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		buf.WriteString(`{"$numberDouble":"NaN"}`)
		return
	case math.IsInf(f, 1):
		buf.WriteString(`{"$numberDouble":"Infinity"}`)
		return
	case math.IsInf(f, -1):
		buf.WriteString(`{"$numberDouble":"-Infinity"}`)
		return
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	// An integral double keeps a fraction so it decodes back as a double.
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	buf.WriteString(s)
}

// quote writes s as a JSON string without HTML escaping.
func (w *jsonWriter) quote(s string) error {
	if w.nfc {
		s = norm.NFC.String(s)
	}
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline
	w.buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
