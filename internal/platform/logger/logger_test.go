package logger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func forceRedaction(t *testing.T) {
	t.Helper()
	redactOnce.Do(func() {})
	redactionEnabled = true
	scriptValueLimit = 16
}

func TestSanitizeRedactsSecretTaggedOutputs(t *testing.T) {
	forceRedaction(t)

	out := sanitizeKVs([]interface{}{
		"outputs", map[string]interface{}{
			"result":         "ok",
			"secret_api_key": "hunter2",
		},
	})

	require.Len(t, out, 2)
	m, ok := out[1].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "ok", m["result"])
	require.Equal(t, "[REDACTED]", m["secret_api_key"], "a secret-tagged output port value must never be logged in clear")
}

func TestSanitizeTruncatesScriptBodies(t *testing.T) {
	forceRedaction(t)

	body := strings.Repeat("x", 100)
	out := sanitizeKVs([]interface{}{"script", body})

	require.Len(t, out, 2)
	s, ok := out[1].(string)
	require.True(t, ok)
	require.Less(t, len(s), len(body))
	require.Contains(t, s, "100 bytes total")
}

func TestSanitizeRedactsBearerTokens(t *testing.T) {
	forceRedaction(t)

	out := sanitizeKVs([]interface{}{"authorization", "Bearer abc"})
	require.Equal(t, "[REDACTED]", out[1])
}

func TestSanitizeLeavesOrdinaryFieldsAlone(t *testing.T) {
	forceRedaction(t)

	out := sanitizeKVs([]interface{}{"state_path", "root/a", "run_id", "run-1"})
	require.Equal(t, []interface{}{"state_path", "root/a", "run_id", "run-1"}, out)
}
