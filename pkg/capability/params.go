package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParamType is the JSON schema type of a parameter.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeInteger ParamType = "integer"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// Param describes one capability argument.
type Param struct {
	Name        string    `json:"name" yaml:"name"`
	Type        ParamType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
}

func (t ParamType) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeObject:
		return true
	}
	return false
}

// coerce normalises a decoded JSON value to the parameter type. Models often
// quote numbers, so numeric strings are accepted for integer and number.
func (t ParamType) coerce(v any) (any, error) {
	switch t {
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case float64, bool:
			return fmt.Sprint(s), nil
		}
	case TypeInteger:
		switch n := v.(type) {
		case float64:
			if n == math.Trunc(n) {
				return int(n), nil
			}
		case int:
			return n, nil
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i, nil
			}
		}
	case TypeNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, nil
			}
		}
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
				return parsed, nil
			}
		}
	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("expected %s, got %T", t, v)
}

func schemaFor(params []Param) map[string]any {
	props := make(map[string]any, len(params))
	required := make([]string, 0, len(params))
	for _, p := range params {
		prop := map[string]any{"type": string(p.Type)}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Args holds decoded capability arguments.
type Args map[string]any

// String returns the string argument or "".
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Int returns the integer argument or 0.
func (a Args) Int(key string) int {
	switch n := a[key].(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// JSON re-encodes the arguments.
func (a Args) JSON() string {
	raw, err := json.Marshal(map[string]any(a))
	if err != nil {
		return "{}"
	}
	return string(raw)
}
