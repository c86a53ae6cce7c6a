package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseActivity(t *testing.T) {
	got, err := parseActivity([]byte(" {\n \"type\": \"message\" }\n"))
	require.NoError(t, err)
	require.Equal(t, `{"type":"message"}`, string(got))

	got, err = parseActivity([]byte("\xef\xbb\xbf {\"type\":\"message\"}"))
	require.NoError(t, err)
	require.Equal(t, `{"type":"message"}`, string(got))

	for _, bad := range []string{"", "   ", "[]", `"text"`, "null", "{", `{"a":1}{"b":2}`, "\xef\xbb\xbf", "\xef\xbb\xbf\xef\xbb\xbf{}"} {
		_, err := parseActivity([]byte(bad))
		require.Error(t, err, "input=%q", bad)
	}
}

func TestEncodeTranscript(t *testing.T) {
	require.Equal(t, "[]", string(encodeTranscript(nil)))
	require.Equal(t, `[{"a":1},{"b":2}]`, string(encodeTranscript([]json.RawMessage{
		json.RawMessage(`{"a":1}`),
		json.RawMessage(`{"b":2}`),
	})))
}

func TestEncodeIndentedTranscript_DropsNullMembers(t *testing.T) {
	out, err := encodeIndentedTranscript([]json.RawMessage{
		json.RawMessage(`{"z":1,"gone":null,"nested":{"keep":"<b>&","drop":null},"list":[null,2.50,true]}`),
	})
	require.NoError(t, err)

	want := `[
  {
    "z": 1,
    "nested": {
      "keep": "<b>&"
    },
    "list": [
      null,
      2.50,
      true
    ]
  }
]`
	require.Equal(t, want, string(out))
}

func TestEncodeIndentedTranscript_PreservesOrderAcrossActivities(t *testing.T) {
	out, err := encodeIndentedTranscript([]json.RawMessage{
		json.RawMessage(`{"id":"1"}`),
		json.RawMessage(`{"id":"2","empty":{}}`),
	})
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	require.Len(t, decoded, 2)
	require.Equal(t, "1", decoded[0]["id"])
	require.Equal(t, map[string]any{}, decoded[1]["empty"])
}

func TestEncodeIndentedTranscript_Empty(t *testing.T) {
	out, err := encodeIndentedTranscript(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(out))
}
