package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Argument is one entry of a game or JVM argument list. It is either a
// LiteralArgument or a ConditionalArgument.
type Argument interface {
	argument()
}

// LiteralArgument is an unconditional argument.
type LiteralArgument string

// ConditionalArgument expands to Values only when Rules allow.
type ConditionalArgument struct {
	Rules  []Rule
	Values []string
}

func (LiteralArgument) argument()     {}
func (ConditionalArgument) argument() {}

// LegacyArguments turns a pre-1.13 minecraftArguments string into
// literals, preserving order.
func LegacyArguments(s string) []Argument {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	args := make([]Argument, len(fields))
	for i, f := range fields {
		args[i] = LiteralArgument(f)
	}
	return args
}

// ExpandArguments evaluates conditional entries against ctx and returns
// the flat string list.
func ExpandArguments(args []Argument, ctx PlatformContext) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		switch a := arg.(type) {
		case LiteralArgument:
			out = append(out, string(a))
		case ConditionalArgument:
			if Allowed(a.Rules, ctx) {
				out = append(out, a.Values...)
			}
		default:
			panic(fmt.Sprintf("core: unknown argument type %T", arg))
		}
	}
	return out
}

type conditionalJSON struct {
	Rules []Rule          `json:"rules"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON encodes a single value as a string, like version documents do.
func (a ConditionalArgument) MarshalJSON() ([]byte, error) {
	var value any = a.Values
	if len(a.Values) == 1 {
		value = a.Values[0]
	}
	return json.Marshal(struct {
		Rules []Rule `json:"rules"`
		Value any    `json:"value"`
	}{a.Rules, value})
}

// UnmarshalJSON accepts {"rules": [...], "value": "x" | ["x", "y"]}.
func (a *ConditionalArgument) UnmarshalJSON(data []byte) error {
	var raw conditionalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	values, err := decodeStringOrList(raw.Value)
	if err != nil {
		return fmt.Errorf("argument value: %w", err)
	}
	a.Rules = raw.Rules
	a.Values = values
	return nil
}

// UnmarshalJSON decodes the mixed string/object argument arrays.
func (a *Arguments) UnmarshalJSON(data []byte) error {
	var raw struct {
		Game []json.RawMessage `json:"game"`
		JVM  []json.RawMessage `json:"jvm"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	game, err := decodeArgumentList(raw.Game)
	if err != nil {
		return fmt.Errorf("game arguments: %w", err)
	}
	jvm, err := decodeArgumentList(raw.JVM)
	if err != nil {
		return fmt.Errorf("jvm arguments: %w", err)
	}

	a.Game = game
	a.JVM = jvm
	return nil
}

func decodeArgumentList(raw []json.RawMessage) ([]Argument, error) {
	if raw == nil {
		return nil, nil
	}
	args := make([]Argument, 0, len(raw))
	for i, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		switch item[0] {
		case '"':
			var s string
			if err := json.Unmarshal(item, &s); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			args = append(args, LiteralArgument(s))
		case '{':
			var c ConditionalArgument
			if err := json.Unmarshal(item, &c); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
			args = append(args, c)
		default:
			return nil, fmt.Errorf("entry %d: unexpected %s", i, item)
		}
	}
	return args, nil
}

func decodeStringOrList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
