// ABOUTME: Structured tool-argument payloads recorded with tool executions
// ABOUTME: Arguments stay typed in memory and are only encoded to JSON when persisted

package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// ArgKind identifies which field of an ArgValue is set
type ArgKind int

const (
	ArgNull ArgKind = iota
	ArgString
	ArgNumber
	ArgBool
	ArgList
	ArgObject
)

// ArgValue is a single tool argument value
type ArgValue struct {
	Kind   ArgKind
	String string
	Number float64
	Bool   bool
	List   []ArgValue
	Object map[string]ArgValue
}

// ToolArgs are the named arguments of one tool call
type ToolArgs map[string]ArgValue

// StringArg builds a string argument
func StringArg(s string) ArgValue { return ArgValue{Kind: ArgString, String: s} }

// NumberArg builds a numeric argument
func NumberArg(n float64) ArgValue { return ArgValue{Kind: ArgNumber, Number: n} }

// BoolArg builds a boolean argument
func BoolArg(b bool) ArgValue { return ArgValue{Kind: ArgBool, Bool: b} }

// ListArg builds a list argument
func ListArg(items ...ArgValue) ArgValue { return ArgValue{Kind: ArgList, List: items} }

// ObjectArg builds an object argument
func ObjectArg(fields map[string]ArgValue) ArgValue { return ArgValue{Kind: ArgObject, Object: fields} }

// MarshalJSON encodes the value as plain JSON
func (v ArgValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ArgNull:
		return []byte("null"), nil
	case ArgString:
		return json.Marshal(v.String)
	case ArgNumber:
		return json.Marshal(v.Number)
	case ArgBool:
		return json.Marshal(v.Bool)
	case ArgList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	case ArgObject:
		if v.Object == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.Object)
	default:
		return nil, fmt.Errorf("unknown arg kind %d", v.Kind)
	}
}

// UnmarshalJSON decodes any JSON value into the matching kind
func (v *ArgValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := argFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ArgsFromMap converts decoded JSON (map[string]any) into ToolArgs
func ArgsFromMap(m map[string]any) (ToolArgs, error) {
	args := make(ToolArgs, len(m))
	for k, raw := range m {
		v, err := argFromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		args[k] = v
	}
	return args, nil
}

// Keys returns argument names in sorted order
func (a ToolArgs) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func argFromAny(raw any) (ArgValue, error) {
	switch t := raw.(type) {
	case nil:
		return ArgValue{Kind: ArgNull}, nil
	case string:
		return StringArg(t), nil
	case bool:
		return BoolArg(t), nil
	case float64:
		return NumberArg(t), nil
	case int:
		return NumberArg(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return ArgValue{}, err
		}
		return NumberArg(f), nil
	case []any:
		items := make([]ArgValue, 0, len(t))
		for _, item := range t {
			v, err := argFromAny(item)
			if err != nil {
				return ArgValue{}, err
			}
			items = append(items, v)
		}
		return ListArg(items...), nil
	case map[string]any:
		fields := make(map[string]ArgValue, len(t))
		for k, item := range t {
			v, err := argFromAny(item)
			if err != nil {
				return ArgValue{}, err
			}
			fields[k] = v
		}
		return ObjectArg(fields), nil
	default:
		return ArgValue{}, fmt.Errorf("unsupported argument type %T", raw)
	}
}
