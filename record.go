package sitediff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ItemID uniquely identifies one record within a site's namespace.
type ItemID string

// Field is a single key/value pair of a parsed record.
type Field struct {
	Key   string
	Value string
}

// Fields is an ordered list of record fields. Keys are unique; Add resolves
// duplicates by suffixing.
type Fields []Field

// Add appends a field. If key is already present the value is stored under
// key_2, key_3, ... so that no value is lost.
func (f *Fields) Add(key, value string) {
	name := key
	for n := 2; f.Has(name); n++ {
		name = key + "_" + strconv.Itoa(n)
	}
	*f = append(*f, Field{Key: name, Value: value})
}

// Has reports whether key is present.
func (f Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (string, bool) {
	for _, fld := range f {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return "", false
}

// Keys returns the field names in insertion order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f))
	for i, fld := range f {
		keys[i] = fld.Key
	}
	return keys
}

// Rename returns a copy of f with keys renamed according to mapping.
// Keys absent from mapping are kept; collisions follow the Add rule.
func (f Fields) Rename(mapping map[string]string) Fields {
	if len(mapping) == 0 {
		return f
	}
	out := make(Fields, 0, len(f))
	for _, fld := range f {
		key := fld.Key
		if to, ok := mapping[key]; ok && to != "" {
			key = to
		}
		out.Add(key, fld.Value)
	}
	return out
}

// MarshalJSON encodes fields as a JSON object preserving insertion order.
// HTML characters are left unescaped; an outer encoder may still escape them.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('{')
	for i, fld := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(fld.Key); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
		buf.WriteByte(':')
		if err := enc.Encode(fld.Value); err != nil {
			return nil, err
		}
		buf.Truncate(buf.Len() - 1)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping key order.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*f = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("fields: expected object, got %v", tok)
	}
	out := Fields{}
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("fields: value of %v: %w", kt, err)
		}
		out.Add(kt.(string), value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// Record is a parsed detail page. Records are immutable once produced;
// ownership passes to the RecordSink.
type Record struct {
	Site        string    `json:"site"`
	ItemID      ItemID    `json:"item_id"`
	URL         string    `json:"url"`
	ContentHash string    `json:"content_hash,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Fields      Fields    `json:"fields"`
}
