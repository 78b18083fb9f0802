package tool

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/modelrelay/ag/messages"
)

var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// Definition binds a tool's name, description and parameter schema to its
// callable. Definitions are immutable once constructed and safe for
// concurrent use.
type Definition struct {
	Name        string
	Description string

	parameters json.RawMessage
	invoke     func(context.Context, []byte) (string, float64, error)
}

// ParametersJSON returns the JSON schema for the tool's argument struct:
// an object schema with every property required and additional properties
// rejected. The schema is computed once at construction.
func (d Definition) ParametersJSON() json.RawMessage {
	return d.parameters
}

// Invoke decodes the raw argument JSON into the tool's argument struct and
// calls the underlying function. The float result is the incremental dollar
// cost reported by the tool, zero for free tools. Argument JSON that does
// not decode is an *messages.ArgumentParseError.
func (d Definition) Invoke(ctx context.Context, rawArgs []byte) (string, float64, error) {
	return d.invoke(ctx, rawArgs)
}

// Option is a configuration option for a tool definition.
type Option = opts.Option[Definition]

// Name overrides the tool's name. Without it the name defaults to the
// argument struct's type name.
var Name = opts.ForName[Definition, string]("Name")

// Description sets the tool's description. Leading indentation shared by
// all lines is stripped, so raw string literals read naturally in source.
var Description = opts.ForName[Definition, string]("Description")

// New builds a tool definition from a callable and its options. The callable
// must be func(context.Context, Args) (string, error) or
// func(context.Context, Args) (string, float64, error); any other shape is
// rejected.
func New[Args any](fn any, options ...Option) (Definition, error) {
	var call func(context.Context, Args) (string, float64, error)
	switch f := fn.(type) {
	case func(context.Context, Args) (string, float64, error):
		call = f
	case func(context.Context, Args) (string, error):
		call = func(ctx context.Context, args Args) (string, float64, error) {
			result, err := f(ctx, args)
			return result, 0, err
		}
	default:
		return Definition{}, fmt.Errorf(
			"tool callable must be func(context.Context, %[1]s) (string, error) or func(context.Context, %[1]s) (string, float64, error), got %[2]T",
			reflect.TypeFor[Args]().String(), fn)
	}

	var def Definition
	if err := opts.Apply(&def, options); err != nil {
		return Definition{}, err
	}

	if def.Name == "" {
		def.Name = reflect.TypeFor[Args]().Name()
	}
	if def.Name == "" {
		return Definition{}, fmt.Errorf("tool with anonymous argument type requires the Name option")
	}
	def.Description = dedent(def.Description)

	parameters, err := argumentSchema[Args]()
	if err != nil {
		return Definition{}, fmt.Errorf("tool %s: %w", def.Name, err)
	}
	def.parameters = parameters

	name := def.Name
	def.invoke = func(ctx context.Context, rawArgs []byte) (string, float64, error) {
		var args Args
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return "", 0, &messages.ArgumentParseError{Name: name, Err: err}
		}
		return call(ctx, args)
	}
	return def, nil
}

// Must is New that panics on error, for tools defined at program startup.
func Must[Args any](fn any, options ...Option) Definition {
	def, err := New[Args](fn, options...)
	if err != nil {
		panic(err)
	}
	return def
}

// argumentSchema reflects the argument struct into an object schema and
// tightens it: all properties required, additionalProperties false.
func argumentSchema[Args any]() (json.RawMessage, error) {
	schema := reflector.ReflectFromType(reflect.TypeFor[Args]())
	schema.Version = ""

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	if gjson.GetBytes(data, "type").String() != "object" {
		return nil, fmt.Errorf("argument type must be a struct")
	}

	var required []string
	gjson.GetBytes(data, "properties").ForEach(func(key, _ gjson.Result) bool {
		required = append(required, key.String())
		return true
	})
	data, err = sjson.SetBytes(data, "required", required)
	if err != nil {
		return nil, err
	}
	data, err = sjson.SetBytes(data, "additionalProperties", false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// dedent strips the indentation shared by all non-blank lines and trims
// surrounding whitespace.
func dedent(s string) string {
	lines := strings.Split(s, "\n")

	prefix := ""
	first := true
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, prefix)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
