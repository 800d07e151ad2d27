package tools

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	llmkit "github.com/streamloop/llmkit"
)

type weatherParams struct {
	City string `json:"city" jsonschema:"required,description=City name"`
	Unit string `json:"unit,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
}

func TestDefine_ReflectsSchema(t *testing.T) {
	def, err := Define[weatherParams]("get_weather", "Look up current weather")
	require.NoError(t, err)
	require.Equal(t, "get_weather", def.Name)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(def.InputSchema, &schema))
	require.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok, "schema must inline properties, got %v", schema)
	require.Contains(t, props, "city")
	require.Contains(t, props, "unit")

	city := props["city"].(map[string]any)
	require.Equal(t, "City name", city["description"])

	required, ok := schema["required"].([]any)
	require.True(t, ok)
	require.Contains(t, required, "city")
}

func TestDefine_EmptyName(t *testing.T) {
	_, err := Define[weatherParams]("", "nameless")
	require.Error(t, err)
}

func TestMustDefine(t *testing.T) {
	def := MustDefine[weatherParams]("get_weather", "Look up current weather")
	require.Equal(t, "get_weather", def.Name)
	require.NotEmpty(t, def.InputSchema)

	require.Panics(t, func() {
		MustDefine[weatherParams]("", "nameless")
	})
}

func TestDecode_PrefersParsedArguments(t *testing.T) {
	call := llmkit.ToolCall{
		Name:          "get_weather",
		Arguments:     json.RawMessage(`{"city":"Paris"}`),
		ArgumentsText: `{"city":"ignored"}`,
	}
	params, err := Decode[weatherParams](call)
	require.NoError(t, err)
	require.Equal(t, "Paris", params.City)
}

func TestDecode_FallsBackToRawText(t *testing.T) {
	call := llmkit.ToolCall{
		Name:          "get_weather",
		ArgumentsText: `{"city":"Oslo","unit":"celsius"}`,
	}
	params, err := Decode[weatherParams](call)
	require.NoError(t, err)
	require.Equal(t, "Oslo", params.City)
	require.Equal(t, "celsius", params.Unit)
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode[weatherParams](llmkit.ToolCall{Name: "empty"})
	require.Error(t, err)

	_, err = Decode[weatherParams](llmkit.ToolCall{Name: "bad", ArgumentsText: `{"city":`})
	require.Error(t, err)
}
