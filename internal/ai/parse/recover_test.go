package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webforge_server/internal/types"
)

func TestParseToolArgs_WellFormed(t *testing.T) {
	original := types.GeneratedFile{
		Path:        "/App.js",
		Content:     "export default function App() {\n  return <div>hi</div>;\n}\n",
		Description: "Main app component",
	}
	raw, err := json.Marshal(original)
	require.NoError(t, err)

	parsed, err := ParseToolArgs(string(raw), false)
	require.NoError(t, err)
	assert.Equal(t, original, parsed)
}

func TestParseToolArgs_FencedAndProse(t *testing.T) {
	raw := "Here is the file you asked for:\n```json\n{\"path\": \"/App.js\", \"content\": \"hello\"}\n```\nLet me know if you need more."

	parsed, err := ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "/App.js", parsed.Path)
	assert.Equal(t, "hello", parsed.Content)
}

func TestParseToolArgs_BacktickStrings(t *testing.T) {
	raw := "{\"path\": \"/App.js\", \"content\": `function App() {\n  return \"ok\";\n}`, \"description\": \"app\"}"

	parsed, err := ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "/App.js", parsed.Path)
	assert.Contains(t, parsed.Content, "function App() {")
	assert.Contains(t, parsed.Content, `return "ok";`)
	assert.Equal(t, "app", parsed.Description)
}

func TestParseToolArgs_LiteralNewlinesInContent(t *testing.T) {
	// Models regularly emit raw multi-line code inside the JSON string.
	raw := "{\"path\": \"/components/Card.js\", \"content\": \"line one\nline two\nline three\"}"

	parsed, err := ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\nline three", parsed.Content)
}

func TestParseToolArgs_TrailingCommas(t *testing.T) {
	raw := `{"path": "/App.js", "content": "x", "description": "d",}`

	parsed, err := ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "/App.js", parsed.Path)
	assert.Equal(t, "d", parsed.Description)
}

func TestParseToolArgs_TruncatedResponse(t *testing.T) {
	// Cut off mid-object by the token limit. With the truncation flag the
	// structural repair closes the object; without it the field-extraction
	// fallback still recovers the value.
	raw := `{"path": "/App.js", "content": "const x = 1;"`

	parsed, err := ParseToolArgs(raw, true)
	require.NoError(t, err)
	assert.Equal(t, "/App.js", parsed.Path)
	assert.Equal(t, "const x = 1;", parsed.Content)

	parsed, err = ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "const x = 1;", parsed.Content)
}

func TestParseToolArgs_SeverelyMalformedFallsBackToExtraction(t *testing.T) {
	raw := `{"path": "/App.js", "content": "let s = \"a\";", "description": "broken" extra garbage here }}}`

	parsed, err := ParseToolArgs(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "/App.js", parsed.Path)
	assert.Equal(t, `let s = "a";`, parsed.Content)
	assert.Equal(t, "broken", parsed.Description)
}

func TestParseToolArgs_TerminalMiss(t *testing.T) {
	t.Run("no path field", func(t *testing.T) {
		_, err := ParseToolArgs(`{"content": "code without a home"}`, false)
		assert.ErrorIs(t, err, ErrUnparseable)
	})
	t.Run("no content key", func(t *testing.T) {
		_, err := ParseToolArgs(`{"path": "/App.js"}`, false)
		assert.ErrorIs(t, err, ErrUnparseable)
	})
	t.Run("plain prose", func(t *testing.T) {
		_, err := ParseToolArgs("I cannot write that file for you.", false)
		assert.ErrorIs(t, err, ErrUnparseable)
	})
}

func TestParsePreviewArgs(t *testing.T) {
	assert.Equal(t, "All done!", ParsePreviewArgs(`{"message": "All done!"}`))
	assert.Equal(t, "done", ParsePreviewArgs(`{"message": "done", broken`))
	assert.Equal(t, "", ParsePreviewArgs("not json at all"))
}

func TestParseResponse_CodeShape(t *testing.T) {
	raw := `{"type": "code", "files": {"/App.js": "code"}, "description": "A counter app"}`

	resp, err := ParseResponse(raw, false)
	require.NoError(t, err)
	assert.Equal(t, "code", resp.Type)
	assert.Equal(t, "code", resp.Files["/App.js"])
	assert.Equal(t, "A counter app", resp.Description)
}

func TestParseResponse_WrappedFilesKey(t *testing.T) {
	for _, key := range []string{"result", "code", "data", "output"} {
		raw := `{"` + key + `": {"/App.js": "x"}}`
		resp, err := ParseResponse(raw, false)
		require.NoError(t, err, "key %s", key)
		assert.Equal(t, "code", resp.Type)
		assert.Equal(t, "x", resp.Files["/App.js"])
	}
}

func TestParseResponse_ChatShape(t *testing.T) {
	resp, err := ParseResponse(`{"type": "chat", "message": "What color scheme do you want?"}`, false)
	require.NoError(t, err)
	assert.Equal(t, "chat", resp.Type)
	assert.Equal(t, "What color scheme do you want?", resp.Message)
}

func TestParseResponse_TerminalMiss(t *testing.T) {
	_, err := ParseResponse("total garbage, not even a brace", false)
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, StripFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, StripFences(`Sure! {"a": 1} Hope that helps.`))
}

func TestConvertBacktickStrings_LeavesQuotedStringsAlone(t *testing.T) {
	in := `{"content": "has a \` + "`" + `backtick\` + "`" + ` inside"}`
	// Backticks inside a legitimate double-quoted string are preserved.
	assert.Equal(t, in, ConvertBacktickStrings(in))
}

func TestEscapeControlChars(t *testing.T) {
	in := "{\"a\": \"x\ny\"}"
	out := EscapeControlChars(in)
	assert.Equal(t, `{"a": "x\ny"}`, out)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "x\ny", decoded["a"])
}

func TestRepairTruncation(t *testing.T) {
	repaired := RepairTruncation(`{"files": {"/App.js": "code"`)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(repaired), &decoded))
	assert.Contains(t, decoded, "files")
}
