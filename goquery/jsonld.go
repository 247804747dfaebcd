package goquery

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/sitediff"
	"github.com/titanous/json5"
)

var _ sitediff.Parser = (*JSONLDParser)(nil)

// JSONLDParser flattens embedded structured-data blocks
// (script[type="application/ld+json"]) into dotted keys such as
// "hiringOrganization.name" or "@graph.0.name". Strict JSON keeps document
// key order. Blocks that are not strict JSON (trailing commas, comments,
// single quotes) are read as JSON5 with keys sorted. Blocks that fail both
// are skipped and counted.
type JSONLDParser struct{}

// NewJSONLDParser creates a new JSONLDParser.
func NewJSONLDParser() *JSONLDParser {
	return &JSONLDParser{}
}

// Parse builds fields from every JSON-LD block in scope.
func (p *JSONLDParser) Parse(content string, spec sitediff.ParserSpec) (*sitediff.ParseResult, error) {
	return parse(content, spec, func(root *goquery.Selection, res *sitediff.ParseResult) {
		blocks := root.Find(`script[type="application/ld+json"]`)
		if root.Is(`script[type="application/ld+json"]`) {
			blocks = root
		}
		blocks.Each(func(_ int, s *goquery.Selection) {
			raw := strings.TrimSpace(s.Text())
			if raw == "" {
				return
			}
			fields, err := flattenJSON(raw)
			if err != nil {
				fields, err = flattenJSON5(raw)
			}
			if err != nil {
				res.Skipped++
				return
			}
			for _, f := range fields {
				res.Fields.Add(f.Key, f.Value)
			}
		})
	})
}

// flattenJSON walks a strict JSON document token by token so that object
// keys keep their document order.
func flattenJSON(raw string) (sitediff.Fields, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var fields sitediff.Fields
	if err := walkJSON(dec, "", &fields); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return fields, nil
}

func walkJSON(dec *json.Decoder, key string, fields *sitediff.Fields) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return err
				}
				name, ok := kt.(string)
				if !ok {
					return fmt.Errorf("unexpected object key %v", kt)
				}
				if err := walkJSON(dec, joinKey(key, name), fields); err != nil {
					return err
				}
			}
		case '[':
			for i := 0; dec.More(); i++ {
				if err := walkJSON(dec, joinKey(key, strconv.Itoa(i)), fields); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unexpected delimiter %v", v)
		}
		// Closing delimiter.
		_, err := dec.Token()
		return err
	case string:
		addScalar(fields, key, v)
	case json.Number:
		addScalar(fields, key, v.String())
	case bool:
		addScalar(fields, key, strconv.FormatBool(v))
	case nil:
		// null carries no value.
	}
	return nil
}

func flattenJSON5(raw string) (sitediff.Fields, error) {
	var v any
	if err := json5.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	var fields sitediff.Fields
	walkValue(v, "", &fields)
	return fields, nil
}

func walkValue(v any, key string, fields *sitediff.Fields) {
	switch v := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkValue(v[k], joinKey(key, k), fields)
		}
	case []any:
		for i, item := range v {
			walkValue(item, joinKey(key, strconv.Itoa(i)), fields)
		}
	case string:
		addScalar(fields, key, v)
	case float64:
		addScalar(fields, key, strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		addScalar(fields, key, strconv.FormatBool(v))
	}
}

func addScalar(fields *sitediff.Fields, key, value string) {
	if key == "" {
		key = "value"
	}
	fields.Add(key, strings.TrimSpace(value))
}

func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
