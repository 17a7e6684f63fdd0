package bulk

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Attribute type tags with import-specific value forms.
const (
	TypeCheckbox = "Checkbox"
	TypePerson   = "Map:Person"
)

const checkboxEnabled = "1"

// NormalizeValue converts a raw attribute value into the text the import
// engine expects for its type. Unknown types pass through unchanged.
func NormalizeValue(raw any, attrType string, people *PersonCache) string {
	switch attrType {
	case TypeCheckbox:
		if isCheckboxEnabled(raw) {
			return "yes"
		}
		return "no"
	case TypePerson:
		id, ok := personID(raw)
		if !ok {
			return ""
		}
		return people.Lookup(id)
	default:
		if isFalsy(raw) {
			return ""
		}
		return textOf(raw)
	}
}

// decodeRaw turns a raw JSON value into a Go value, keeping numbers verbatim.
func decodeRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isCheckboxEnabled(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		return v == checkboxEnabled
	case json.Number:
		return v.String() == checkboxEnabled
	case float64:
		return v == 1
	case int:
		return v == 1
	case int64:
		return v == 1
	}
	return false
}

func isFalsy(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case json.Number:
		f, err := v.Float64()
		return err == nil && f == 0
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	}
	return false
}

func textOf(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(b)
}

// personID extracts a person identifier from a raw Map:Person value.
func personID(raw any) (int64, bool) {
	switch v := raw.(type) {
	case json.Number:
		id, err := v.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	case float64:
		return int64(v), v == float64(int64(v))
	case int:
		return int64(v), true
	case int64:
		return v, true
	}
	return 0, false
}
