// Package canon implements Haldir's canonical JSON encoding and the
// pre-authentication encoding (PAE) used to bind a payload type to a payload
// before it is signed.
//
// Canonical JSON is the sole byte representation ever hashed or signed
// anywhere in Haldir: object keys are sorted by UTF-16 code-unit order, there
// is no insignificant whitespace, numbers use the shortest round-tripping
// decimal form, and strings use minimal escaping. Two syntactically
// different but semantically equal JSON documents always canonicalize to
// identical bytes.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"unicode/utf16"
)

// lineSeparator and paragraphSeparator are legal inside a JSON string but
// terminate a JavaScript string literal; canonical JSON escapes them so the
// byte stream is safe to embed in script contexts.
const (
	lineSeparator      rune = ' '
	paragraphSeparator rune = ' '
)

// Canonicalize parses a JSON document and re-encodes it deterministically.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canon: invalid JSON: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("canon: trailing data after JSON value")
	}

	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CanonicalizeValue marshals a Go value with encoding/json and canonicalizes
// the result. Use this for values produced in-process (manifests,
// attestations, permissions documents) rather than hand-rolling JSON.
func CanonicalizeValue(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canon: marshal failed: %w", err)
	}
	return Canonicalize(data)
}

func encodeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		s, err := canonicalNumber(t)
		if err != nil {
			return err
		}
		buf.WriteString(s)
		return nil
	case string:
		encodeString(buf, t)
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return less16(keys[i], keys[j]) })

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, k)
			buf.WriteByte(':')
			if err := encodeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canon: unsupported value type %T", v)
	}
}

// less16 orders strings by UTF-16 code-unit sequence, matching the
// comparison a JS-hosted canonicalizer would perform.
func less16(a, b string) bool {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			return ua[i] < ub[i]
		}
	}
	return len(ua) < len(ub)
}

func canonicalNumber(n json.Number) (string, error) {
	s := string(n)

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return strconv.FormatUint(u, 10), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", fmt.Errorf("canon: invalid number %q", s)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "", fmt.Errorf("canon: non-finite number %q", s)
	}
	// 'f' format with shortest round-trip precision never emits an
	// exponent, matching the "no exponent when avoidable" rule.
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// encodeString writes a minimally-escaped, quoted JSON string.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		case lineSeparator:
			buf.WriteString("\\u2028")
		case paragraphSeparator:
			buf.WriteString("\\u2029")
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
