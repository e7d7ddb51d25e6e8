package envutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypedReaders(t *testing.T) {
	t.Parallel()

	src := Values{
		"NAME":     "restyle",
		"ENABLED":  "yes",
		"RETRIES":  "5",
		"RATIO":    "0.25",
		"DELAY":    "1500",
		"TIMEOUT":  "2s",
		"ENDPOINT": "http://localhost:8080/api/generate",
		"BLANK":    "  ",
		"BROKEN":   "five",
	}

	assert.Equal(t, "restyle", String(src, "NAME").ValueOrElse(""))
	assert.True(t, Bool(src, "ENABLED").ValueOrElse(false))
	assert.Equal(t, 5, Int(src, "RETRIES").ValueOrElse(0))
	assert.InDelta(t, 0.25, Float64(src, "RATIO").ValueOrElse(0), 1e-9)
	assert.Equal(t, 1500*time.Millisecond, Duration(src, "DELAY").ValueOrElse(0))
	assert.Equal(t, 2*time.Second, Duration(src, "TIMEOUT").ValueOrElse(0))

	u, err := URL(src, "ENDPOINT").Value()
	require.NoError(t, err)
	assert.Equal(t, "/api/generate", u.Path)

	blank := String(src, "BLANK")
	assert.False(t, blank.HasValue())

	_, err = blank.Value()
	require.ErrorIs(t, err, ErrEnvVarMissing)

	broken := Int(src, "BROKEN", Default(3))
	_, err = broken.Value()
	require.ErrorIs(t, err, ErrBadEnvVar)
	assert.Equal(t, 3, broken.ValueOrElse(3))
}

func TestOptions(t *testing.T) {
	t.Parallel()

	src := Values{"PROB": "1.5"}

	assert.Equal(t, 7, Int(src, "MISSING", Default(7)).ValueOrElse(0))

	prob := Float64(src, "PROB", Validate(Between(0.0, 1.0)))
	require.ErrorIs(t, prob.Error(), ErrOutOfRange)
	assert.Contains(t, prob.String(), "PROB=<error")

	ok := Float64(Values{"PROB": "0.2"}, "PROB", Validate(Between(0.0, 1.0)))
	assert.Equal(t, "PROB=0.2", ok.String())
	assert.Equal(t, "GONE=<not set>", String(src, "GONE").String())
}

func TestLayered(t *testing.T) {
	t.Parallel()

	src := Layered(nil, Values{"A": "first"}, Values{"A": "second", "B": "second"})

	assert.Equal(t, "first", String(src, "A").ValueOrElse(""))
	assert.Equal(t, "second", String(src, "B").ValueOrElse(""))
	assert.False(t, String(src, "C").HasValue())
}

func TestURL_RequiresAbsolute(t *testing.T) {
	t.Parallel()

	rdr := URL(Values{"U": "/relative"}, "U")
	require.ErrorIs(t, rdr.Error(), ErrBadEnvVar)
}

func TestLoadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	files := map[string]string{
		"settings.env":  "RESTYLE_MAX_RETRIES=4\n# comment\nRESTYLE_STYLE=\"Vintage\"\n",
		"settings.json": `{"env":{"RESTYLE_MAX_RETRIES":"4","RESTYLE_STYLE":"Vintage"}}`,
		"settings.yaml": "env:\n  RESTYLE_MAX_RETRIES: \"4\"\n  RESTYLE_STYLE: Vintage\n",
	}

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		vars, err := LoadFile(path)
		require.NoError(t, err, name)
		assert.Equal(t, 4, Int(vars, "RESTYLE_MAX_RETRIES").ValueOrElse(0), name)
		assert.Equal(t, "Vintage", String(vars, "RESTYLE_STYLE").ValueOrElse(""), name)
	}

	_, err := LoadFile(filepath.Join(dir, "settings.toml"))
	require.ErrorIs(t, err, ErrUnknownFileType)

	_, err = LoadFile(filepath.Join(dir, "missing.env"))
	require.Error(t, err)
}
