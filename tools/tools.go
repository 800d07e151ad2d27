// Package tools builds canonical tool definitions from Go types.
//
// The input schema is generated by reflection over jsonschema struct tags,
// so a tool's parameter contract lives next to the Go struct that decodes
// its arguments.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	llmkit "github.com/streamloop/llmkit"
)

// Define builds a ToolDefinition whose input schema is reflected from T.
//
// T should be a struct with json and jsonschema struct tags:
//
//	type WeatherParams struct {
//	    City string `json:"city" jsonschema:"required,description=City name"`
//	}
//
//	def, err := tools.Define[WeatherParams]("get_weather", "Look up current weather")
func Define[T any](name, description string) (llmkit.ToolDefinition, error) {
	if name == "" {
		return llmkit.ToolDefinition{}, fmt.Errorf("tools: empty tool name")
	}
	schema, err := Schema[T]()
	if err != nil {
		return llmkit.ToolDefinition{}, err
	}
	return llmkit.ToolDefinition{
		Name:        name,
		Description: description,
		InputSchema: schema,
	}, nil
}

// MustDefine is Define that panics on error; intended for package-level
// tool declarations.
func MustDefine[T any](name, description string) llmkit.ToolDefinition {
	def, err := Define[T](name, description)
	if err != nil {
		panic(err)
	}
	return def
}

// Schema reflects a JSON Schema object from T. Definitions are inlined so
// the schema is self-contained, which is what provider APIs expect.
func Schema[T any]() (json.RawMessage, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}

	var zero T
	schema := reflector.Reflect(zero)

	b, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("tools: generate schema for %T: %w", zero, err)
	}
	return b, nil
}

// Decode unmarshals a completed tool call's arguments into T.
//
// It prefers the parsed Arguments and falls back to the accumulated raw
// text, so it works on calls finalized from fragmented streams.
func Decode[T any](call llmkit.ToolCall) (T, error) {
	var params T
	raw := call.Arguments
	if raw == nil {
		raw = json.RawMessage(call.ArgumentsText)
	}
	if len(raw) == 0 {
		return params, fmt.Errorf("tools: tool call %q has no arguments", call.Name)
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("tools: decode arguments for %q: %w", call.Name, err)
	}
	return params, nil
}
