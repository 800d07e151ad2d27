package partialjson

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_CompleteDocument(t *testing.T) {
	v, ok := Parse([]byte(`{"name":"John","age":30}`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "John", "age": float64(30)}, v)
}

func TestParse_UnterminatedStringDropsMember(t *testing.T) {
	// The unterminated value and its key are dropped, never truncated.
	v, ok := Parse([]byte(`{"name":"Jo`))
	require.True(t, ok)
	require.Equal(t, map[string]any{}, v)
}

func TestParse_KeepsClosedMembers(t *testing.T) {
	v, ok := Parse([]byte(`{"name":"John","ag`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "John"}, v)

	v, ok = Parse([]byte(`{"name":"John","age":`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "John"}, v)
}

func TestParse_TrailingNumberIsUnterminated(t *testing.T) {
	// 30 could still grow into 300; drop it until a delimiter confirms it.
	v, ok := Parse([]byte(`{"name":"John","age":30`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"name": "John"}, v)
}

func TestParse_Arrays(t *testing.T) {
	v, ok := Parse([]byte(`[1, 2, 3`))
	require.True(t, ok)
	require.Equal(t, []any{float64(1), float64(2)}, v)

	v, ok = Parse([]byte(`[1, 2,`))
	require.True(t, ok)
	require.Equal(t, []any{float64(1), float64(2)}, v)

	v, ok = Parse([]byte(`["a", "b`))
	require.True(t, ok)
	require.Equal(t, []any{"a"}, v)
}

func TestParse_Nested(t *testing.T) {
	v, ok := Parse([]byte(`{"user":{"name":"Ada","tags":["x","y`))
	require.True(t, ok)
	require.Equal(t, map[string]any{
		"user": map[string]any{
			"name": "Ada",
			"tags": []any{"x"},
		},
	}, v)
}

func TestParse_Literals(t *testing.T) {
	v, ok := Parse([]byte(`{"done":true,"next":nul`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"done": true}, v)

	v, ok = Parse([]byte(`[true, fal`))
	require.True(t, ok)
	require.Equal(t, []any{true}, v)
}

func TestParse_EscapedQuotes(t *testing.T) {
	v, ok := Parse([]byte(`{"msg":"say \"hi\"","rest":"tr`))
	require.True(t, ok)
	require.Equal(t, map[string]any{"msg": `say "hi"`}, v)
}

func TestParse_NotYetParseable(t *testing.T) {
	for _, in := range []string{"", "  ", `"top-level partial st`, `tru`} {
		_, ok := Parse([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{`{"a" 1}`, `{1: 2}`, `[1 2]`, `{"a":1}}`, `hello`} {
		_, ok := Parse([]byte(in))
		assert.False(t, ok, "input %q", in)
	}
}

func TestRepair_BareOpenBrace(t *testing.T) {
	out, ok := Repair([]byte(`{`))
	require.True(t, ok)
	assert.Equal(t, `{}`, string(out))
}

// Chunk-split idempotence: any split point of a valid document yields either
// "not yet parseable" or a value that the full document extends.
func TestParse_EverySplitOfDocumentStaysConsistent(t *testing.T) {
	doc := `{"name":"John","age":30,"tags":["a","b"],"ok":true}`
	full, ok := Parse([]byte(doc))
	require.True(t, ok)

	for cut := 1; cut < len(doc); cut++ {
		prefix := doc[:cut]
		v, ok := Parse([]byte(prefix))
		if !ok {
			continue
		}
		assertPrefixValue(t, full, v, prefix)
	}

	v, ok := Parse([]byte(doc))
	require.True(t, ok)
	require.Equal(t, full, v)
}

// assertPrefixValue checks that partial is a structural prefix of full:
// present map keys and array elements match, completed scalars are exact.
func assertPrefixValue(t *testing.T, full, partial any, ctx string) {
	t.Helper()
	switch p := partial.(type) {
	case map[string]any:
		f, ok := full.(map[string]any)
		require.True(t, ok, "prefix %q", ctx)
		for k, v := range p {
			fv, ok := f[k]
			require.True(t, ok, "prefix %q key %q", ctx, k)
			assertPrefixValue(t, fv, v, ctx)
		}
	case []any:
		f, ok := full.([]any)
		require.True(t, ok, "prefix %q", ctx)
		require.LessOrEqual(t, len(p), len(f), "prefix %q", ctx)
		for i, v := range p {
			assertPrefixValue(t, f[i], v, ctx)
		}
	default:
		assert.Equal(t, full, partial, "prefix %q", ctx)
	}
}
