package wire

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for any wire value.
// CRITICAL: This is the ONLY serialization used for equality and hashing.
//
// Differences from bson extended JSON:
//  1. Object keys sorted by UTF-16 code units (RFC 8785), regardless of
//     whether the source was an ordered bson.D or a map
//  2. No HTML escaping
//  3. Strings are NFC normalized
//  4. All integer widths print the same way; integral floats print as
//     integers, so 1, int32(1) and 1.0 are equal
//  5. ObjectIDs print as {"$oid":hex}, timestamps as {"$date":millis}
func MarshalCanonical(v any) ([]byte, error) {
	return marshal(v, false)
}

// MarshalExact is MarshalCanonical without the equivalences that hide
// edits: strings keep their bytes (no NFC) and floats print with a
// $numberDouble marker, so 1 and 1.0 differ. Integer widths still print
// alike because the BSON decoder, not the writer, picks them.
func MarshalExact(v any) ([]byte, error) {
	return marshal(v, true)
}

func marshal(v any, exact bool) ([]byte, error) {
	w := &canonicalWriter{exact: exact}
	if err := w.write(v); err != nil {
		return nil, err
	}
	return w.buf.Bytes(), nil
}

// Equal reports whether two wire values are canonically equal.
// Values that cannot be encoded are never equal.
func Equal(a, b any) bool {
	ab, err := MarshalCanonical(a)
	if err != nil {
		return false
	}
	bb, err := MarshalCanonical(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Same reports whether two wire values are exactly equal under
// MarshalExact. Change detection uses it so that retyping a number or
// renormalising a string is written back.
func Same(a, b any) bool {
	ab, err := MarshalExact(a)
	if err != nil {
		return false
	}
	bb, err := MarshalExact(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

type canonicalWriter struct {
	buf   bytes.Buffer
	exact bool
}

func (w *canonicalWriter) write(v any) error {
	buf := &w.buf
	switch val := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		return w.writeString(val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int8:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int16:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int32:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case uint:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint8:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint16:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint32:
		buf.WriteString(strconv.FormatUint(uint64(val), 10))
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
	case float32:
		return w.writeFloat(float64(val))
	case float64:
		return w.writeFloat(val)
	case primitive.ObjectID:
		buf.WriteString(`{"$oid":"`)
		buf.WriteString(val.Hex())
		buf.WriteString(`"}`)
	case primitive.DateTime:
		buf.WriteString(`{"$date":`)
		buf.WriteString(strconv.FormatInt(int64(val), 10))
		buf.WriteByte('}')
	case time.Time:
		return w.write(primitive.NewDateTimeFromTime(val))
	case primitive.Timestamp:
		fmt.Fprintf(buf, `{"$timestamp":{"i":%d,"t":%d}}`, val.I, val.T)
	case primitive.Decimal128:
		buf.WriteString(`{"$numberDecimal":`)
		if err := w.writeString(val.String()); err != nil {
			return err
		}
		buf.WriteByte('}')
	case primitive.Binary:
		fmt.Fprintf(buf, `{"$binary":{"base64":"%s","subType":"%02x"}}`,
			base64.StdEncoding.EncodeToString(val.Data), val.Subtype)
	case []byte:
		return w.write(primitive.Binary{Data: val})
	case primitive.Regex:
		buf.WriteString(`{"$regularExpression":{"options":`)
		if err := w.writeString(val.Options); err != nil {
			return err
		}
		buf.WriteString(`,"pattern":`)
		if err := w.writeString(val.Pattern); err != nil {
			return err
		}
		buf.WriteString("}}")
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = e.Value
		}
		return w.writeObject(m)
	case bson.M:
		return w.writeObject(val)
	case map[string]any:
		return w.writeObject(val)
	case bson.A:
		return w.writeArray(val)
	case []any:
		return w.writeArray(val)
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return w.writeArray(arr)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeFloat prints integral floats as integers so numeric equality does
// not depend on how the decoder typed the number. Exact mode wraps every
// finite float in a $numberDouble marker instead.
func (w *canonicalWriter) writeFloat(f float64) error {
	buf := &w.buf
	switch {
	case math.IsNaN(f):
		buf.WriteString(`{"$numberDouble":"NaN"}`)
	case math.IsInf(f, 1):
		buf.WriteString(`{"$numberDouble":"Infinity"}`)
	case math.IsInf(f, -1):
		buf.WriteString(`{"$numberDouble":"-Infinity"}`)
	case w.exact:
		buf.WriteString(`{"$numberDouble":"`)
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
		buf.WriteString(`"}`)
	case f == math.Trunc(f) && math.Abs(f) < 1e15:
		buf.WriteString(strconv.FormatInt(int64(f), 10))
	default:
		buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return nil
}

// writeString writes a JSON string, NFC normalized unless exact.
// Only control characters, backslash and quote are escaped; U+2028 and
// U+2029 are written literally per RFC 8785.
func (w *canonicalWriter) writeString(s string) error {
	buf := &w.buf
	normalized := s
	if !w.exact {
		normalized = norm.NFC.String(s)
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'})
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes that
// encoding/json emits back into literal characters. An escape preceded by
// an odd number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func (w *canonicalWriter) writeArray(arr []any) error {
	buf := &w.buf
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := w.write(elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func (w *canonicalWriter) writeObject(obj map[string]any) error {
	buf := &w.buf
	buf.WriteByte('{')
	for i, k := range SortedKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := w.writeString(k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := w.write(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 byte order, which differs for
// characters outside the BMP.
func SortedKeys[V any](obj map[string]V) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
