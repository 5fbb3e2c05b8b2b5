package statusfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "onoff.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile(t *testing.T) {
	path := writeFile(t, `
# shop floor bridge output
CNC-001=IDLE
CNC-002=running
 CNC-003 = OFF

malformed line without equals
=MISSING_NAME
CNC-004=
`)

	states, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, states, 3)

	byID := make(map[string]string)
	for _, s := range states {
		byID[s.MachineID] = s.CurrentState
	}
	assert.Equal(t, "IDLE", byID["CNC-001"])
	assert.Equal(t, "RUNNING", byID["CNC-002"], "state tokens are upper-cased")
	assert.Equal(t, "OFF", byID["CNC-003"], "names and values are trimmed")
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestParseFileEmpty(t *testing.T) {
	states, err := ParseFile(writeFile(t, ""))
	require.NoError(t, err)
	assert.Empty(t, states)
}
