package reports

import (
	"sort"
	"strconv"
	"strings"
)

// Payload is the flat key/value input of one report. Nothing is validated
// before rendering; missing keys fall back to defaults.
type Payload map[string]interface{}

// Get returns the first present value among keys.
func (p Payload) Get(keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := p[k]; ok && Present(v) {
			return v
		}
	}
	return nil
}

// String returns the first present value among keys as text, or "".
func (p Payload) String(keys ...string) string {
	if v := p.Get(keys...); v != nil {
		return strings.TrimSpace(Cell(v))
	}
	return ""
}

func (p Payload) Int(key string, def int) int {
	switch x := p[key].(type) {
	case float64:
		return int(x)
	case int:
		return x
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return n
		}
	}
	return def
}

func (p Payload) Float(key string, def float64) float64 {
	switch x := p[key].(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
	}
	return def
}

// Map returns a nested object, or nil.
func (p Payload) Map(keys ...string) Payload {
	for _, k := range keys {
		switch x := p[k].(type) {
		case map[string]interface{}:
			return Payload(x)
		case Payload:
			return x
		}
	}
	return nil
}

// Strings reads a list of notes. A single string is a one-item list; blank
// entries are dropped.
func (p Payload) Strings(keys ...string) []string {
	var out []string
	add := func(v interface{}) {
		if s, ok := display(v); ok {
			out = append(out, s)
		}
	}
	for _, k := range keys {
		switch x := p[k].(type) {
		case []interface{}:
			for _, item := range x {
				add(item)
			}
		case []string:
			for _, item := range x {
				add(item)
			}
		case string:
			add(x)
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// Rows reads the iteration target of a report. Items that are not objects are
// wrapped as {"value": item}; a missing list is an empty one.
func (p Payload) Rows(keys ...string) []map[string]interface{} {
	for _, k := range keys {
		switch x := p[k].(type) {
		case []interface{}:
			rows := make([]map[string]interface{}, 0, len(x))
			for _, item := range x {
				if m, ok := item.(map[string]interface{}); ok {
					rows = append(rows, m)
				} else {
					rows = append(rows, map[string]interface{}{"value": item})
				}
			}
			return rows
		case []map[string]interface{}:
			return x
		}
	}
	return []map[string]interface{}{}
}

// Column is one table column; Keys are tried in order for each row.
type Column struct {
	Label string
	Keys  []string
}

// Columns reads a column list given as strings or {key, label} objects. When
// absent the columns are the sorted keys of the first row.
func (p Payload) Columns(rows []map[string]interface{}, defaults []Column) []Column {
	var cols []Column
	if list, ok := p["columns"].([]interface{}); ok {
		for _, item := range list {
			switch c := item.(type) {
			case string:
				if c != "" {
					cols = append(cols, Column{Label: humanize(c), Keys: []string{c}})
				}
			case map[string]interface{}:
				key, _ := c["key"].(string)
				if key == "" {
					continue
				}
				label, _ := c["label"].(string)
				if label == "" {
					label = humanize(key)
				}
				cols = append(cols, Column{Label: label, Keys: []string{key}})
			}
		}
	}
	if len(cols) > 0 {
		return cols
	}
	if len(defaults) > 0 {
		return defaults
	}
	if len(rows) == 0 {
		return nil
	}
	keys := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cols = append(cols, Column{Label: humanize(k), Keys: []string{k}})
	}
	return cols
}

func humanize(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
