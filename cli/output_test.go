package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputTable(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	out := NewOutputTo(&stdout, &stderr, false, false)

	require.NoError(t, out.Print([]string{"ID", "STYLE"}, [][]string{{"a", "Vintage"}, {"bb", "Editorial"}}, nil))

	assert.Equal(t, "ID  STYLE\n--  -----\na   Vintage\nbb  Editorial\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestOutputJSON(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	out := NewOutputTo(&stdout, &stderr, true, true)
	assert.False(t, out.Interactive())

	require.NoError(t, out.Print(nil, nil, map[string]string{"id": "a"}))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	assert.Equal(t, "a", decoded["id"])
}

func TestOutputStatusWithoutTerminal(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	out := NewOutputTo(&stdout, &stderr, false, false)

	out.Status("Generating...")
	out.Warn("Model overloaded, retrying (1/3)")
	out.ClearStatus()
	out.Error("boom")

	assert.Empty(t, stdout.String())
	assert.Equal(t, "Generating...\nModel overloaded, retrying (1/3)\nError: boom\n", stderr.String())
}

func TestOutputStatusLineIsReplaced(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer

	out := NewOutputTo(&stdout, &stderr, false, true)

	out.Status("one")
	out.Status("two")
	out.Success("done")

	assert.Contains(t, stdout.String(), "\r\033[K")
	assert.Contains(t, stdout.String(), "two")
	assert.Contains(t, stderr.String(), "done")

	// The line was cleared before the message.
	assert.True(t, bytes.HasSuffix(stdout.Bytes(), []byte("\r\033[K")))
}

func TestPrefixSearcher(t *testing.T) {
	t.Parallel()

	choices := []string{"Editorial", "Streetwear", "Vintage"}
	search := prefixSearcher(choices)

	assert.True(t, search("", 1))
	assert.True(t, search("st", 1))
	assert.False(t, search("st", 0))
	assert.True(t, search("VIN", 2))
}

func TestSelectWithoutChoices(t *testing.T) {
	t.Parallel()

	_, err := Select("Style")
	require.ErrorIs(t, err, ErrNoChoices)
}
