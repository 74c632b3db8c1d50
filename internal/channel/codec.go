package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// marshalJSON encodes v without HTML escaping, so "<", ">" and "&" are
// written the way a script host writes them.
func marshalJSON(v any, indent bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Member is one top-level key of a JSON object with its value bytes as read.
type Member struct {
	Key   string
	Value json.RawMessage
}

// DecodeObject splits a JSON object into its members in file order. Values
// are kept byte for byte.
func DecodeObject(data []byte) ([]Member, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected a JSON object, got %v", tok)
	}

	var out []Member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		out = append(out, Member{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON object")
	}
	return out, nil
}

// SetMember replaces every occurrence of key, or appends it.
func SetMember(members []Member, key string, value json.RawMessage) []Member {
	found := false
	for i := range members {
		if members[i].Key == key {
			members[i].Value = value
			found = true
		}
	}
	if !found {
		members = append(members, Member{Key: key, Value: value})
	}
	return members
}

// EncodeObject writes members back as an indented object. Only whitespace
// inside values changes.
func EncodeObject(members []Member) ([]byte, error) {
	if len(members) == 0 {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, m := range members {
		key, err := marshalJSON(m.Key, false)
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, m.Value, "  ", "  "); err != nil {
			return nil, fmt.Errorf("field %s: %w", m.Key, err)
		}
		if i < len(members)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// canonicalJSON re-encodes raw with sorted keys, no insignificant whitespace
// and no HTML escaping. Numbers keep their literal form.
func canonicalJSON(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return marshalJSON(v, false)
}
