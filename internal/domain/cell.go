package domain

import (
	"encoding/json"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Cell stores the payload at one (section, stage) coordinate as a loose field bag.
// The owning section's type decides how the fields are read; nothing here enforces a shape.
type Cell map[string]any

// Clone returns a deep copy of the cell.
func (c Cell) Clone() Cell {
	if c == nil {
		return nil
	}
	out := make(Cell, len(c))
	for key, value := range c {
		out[key] = cloneValue(value)
	}
	return out
}

// Merge returns a copy of c with every key of partial written over it.
// Array values in partial replace the existing value wholesale.
func (c Cell) Merge(partial Cell) Cell {
	out := c.Clone()
	if out == nil {
		out = make(Cell, len(partial))
	}
	for key, value := range partial {
		out[key] = cloneValue(value)
	}
	return out
}

// String reads one field as trimmed text. Numbers and booleans are formatted.
func (c Cell) String(key string) string {
	switch v := c[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Number reads one field as a float. The second result is false when the field is absent or not numeric.
func (c Cell) Number(key string) (float64, bool) {
	switch v := c[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Int reads one numeric field rounded to the nearest integer.
func (c Cell) Int(key string) (int, bool) {
	f, ok := c.Number(key)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Bool reads one boolean field; strings "true"/"false" are accepted.
func (c Cell) Bool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(v))
		return b
	default:
		return false
	}
}

// Strings reads a list field as trimmed, non-empty strings.
// Object entries contribute their "text", "label" or "value" field.
func (c Cell) Strings(key string) []string {
	raw, ok := c[key].([]any)
	if !ok {
		if typed, ok := c[key].([]string); ok {
			raw = make([]any, 0, len(typed))
			for _, s := range typed {
				raw = append(raw, s)
			}
		} else {
			return nil
		}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		text := ""
		switch v := item.(type) {
		case string:
			text = v
		case map[string]any:
			entry := Cell(v)
			for _, k := range []string{"text", "label", "value"} {
				if text = entry.String(k); text != "" {
					break
				}
			}
		}
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Objects reads a list field of objects. Non-object entries are skipped.
func (c Cell) Objects(key string) []Cell {
	raw, ok := c[key].([]any)
	if !ok {
		if typed, ok := c[key].([]map[string]any); ok {
			out := make([]Cell, 0, len(typed))
			for _, m := range typed {
				out = append(out, Cell(m))
			}
			return out
		}
		return nil
	}
	out := make([]Cell, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, Cell(m))
		}
	}
	return out
}

// clampField rewrites a numeric field into [lo, hi] when present. Non-numeric values are left alone.
func (c Cell) clampField(key string, lo, hi float64) {
	f, ok := c.Number(key)
	if !ok {
		return
	}
	c[key] = math.Min(hi, math.Max(lo, f))
}

// cloneValue deep-copies JSON-like values.
func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[key] = cloneValue(inner)
		}
		return out
	case Cell:
		return map[string]any(v.Clone())
	case []any:
		out := make([]any, len(v))
		for i, inner := range v {
			out[i] = cloneValue(inner)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, m := range v {
			out[i] = cloneValue(m)
		}
		return out
	default:
		return v
	}
}

// cloneCells deep-copies a stage-keyed cell map.
func cloneCells(cells map[string]Cell) map[string]Cell {
	out := make(map[string]Cell, len(cells))
	for stageID, cell := range cells {
		out[stageID] = cell.Clone()
	}
	return out
}

// SortedKeys returns the cell's field names for deterministic output.
func (c Cell) SortedKeys() []string {
	return slices.Sorted(maps.Keys(c))
}
