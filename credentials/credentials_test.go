package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadKeepsDocumentOrder(t *testing.T) {
	path := writeFile(t, "conf.yaml", `
Cam1:
  zed: pass1
  user2: pass2
  alice: 123456
Lobby:
  "": ""
  admin:
`)

	table, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Cam1", "Lobby"}, table.Names())
	assert.Equal(t, 2, table.Len())

	cam1, ok := table.Lookup("Cam1")
	require.True(t, ok)
	assert.Equal(t, []Candidate{
		{Username: "zed", Password: "pass1"},
		{Username: "user2", Password: "pass2"},
		{Username: "alice", Password: "123456"},
	}, cam1)

	lobby, ok := table.Lookup("Lobby")
	require.True(t, ok)
	require.Len(t, lobby, 2)
	assert.True(t, lobby[0].IsAnonymous())
	assert.Nil(t, lobby[0].SOAP())
	assert.Equal(t, Candidate{Username: "admin"}, lobby[1])
}

func TestLookupIsExactAndFallsBack(t *testing.T) {
	path := writeFile(t, "conf.yaml", "Cam1:\n  user1: pass1\n")
	table, err := NewLoader(path).Load()
	require.NoError(t, err)

	candidates, ok := table.Lookup("cam1")
	assert.False(t, ok)
	assert.Empty(t, candidates, "no fallback configured")

	fallback := []Candidate{{Username: "admin", Password: "admin"}, Anonymous}
	withFallback := table.WithFallback(fallback)
	fallback[0].Password = "changed"

	assert.Empty(t, table.Fallback())
	assert.Equal(t, []Candidate{{Username: "admin", Password: "admin"}, Anonymous}, withFallback.Fallback())

	candidates, ok = withFallback.Lookup("Cam2")
	assert.False(t, ok)
	assert.Equal(t, []Candidate{{Username: "admin", Password: "admin"}, Anonymous}, candidates)

	candidates, ok = withFallback.Lookup("Cam1")
	assert.True(t, ok)
	assert.Equal(t, []Candidate{{Username: "user1", Password: "pass1"}}, candidates)
}

func TestLoadEmptyFile(t *testing.T) {
	for _, content := range []string{"", "# nothing yet\n", "~\n"} {
		table, err := NewLoader(writeFile(t, "conf.yaml", content)).Load()
		require.NoError(t, err)
		assert.Zero(t, table.Len())
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{name: "not a mapping", content: "- Cam1\n- Cam2\n", line: 1},
		{name: "device not a mapping", content: "Cam1: admin\n", line: 1},
		{name: "password without user", content: "Cam1:\n  user1: pass1\n  \"\": secret\n", line: 3},
		{name: "duplicate user", content: "Cam1:\n  user1: a\n  user1: b\n"},
		{name: "duplicate device", content: "Cam1:\n  a: b\nCam1:\n  c: d\n"},
		{name: "nested password", content: "Cam1:\n  user1:\n    - x\n", line: 2},
		{name: "bad yaml", content: "Cam1: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader(writeFile(t, "conf.yaml", tt.content)).Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			if tt.line > 0 {
				assert.Equal(t, tt.line, cfgErr.Line)
			}
			assert.NotContains(t, err.Error(), "secret")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.ErrorIs(t, err, ErrConfig)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseCandidate(t *testing.T) {
	c, err := ParseCandidate("admin:pa:ss")
	require.NoError(t, err)
	assert.Equal(t, Candidate{Username: "admin", Password: "pa:ss"}, c)
	assert.Equal(t, "admin", c.String())

	c, err = ParseCandidate(":")
	require.NoError(t, err)
	assert.True(t, c.IsAnonymous())
	assert.Equal(t, "anonymous", c.String())

	_, err = ParseCandidate(":secret")
	assert.Error(t, err)

	_, err = ParseCandidate("secret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}

func TestReadFallbackFile(t *testing.T) {
	path := writeFile(t, "credentials.txt", `# ONVIF credentials
admin:admin

admin:
root : pass
:
`)
	candidates, err := ReadFallbackFile(path)
	require.NoError(t, err)
	assert.Equal(t, []Candidate{
		{Username: "admin", Password: "admin"},
		{Username: "admin"},
		{Username: "root", Password: "pass"},
		Anonymous,
	}, candidates)

	_, err = ReadFallbackFile(writeFile(t, "bad.txt", "admin:admin\njustaword\n"))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 2, cfgErr.Line)
}

func TestParseFallbacks(t *testing.T) {
	candidates, err := ParseFallbacks([]string{"admin:12345", ":"})
	require.NoError(t, err)
	assert.Equal(t, []Candidate{{Username: "admin", Password: "12345"}, Anonymous}, candidates)

	_, err = ParseFallbacks([]string{"admin"})
	assert.ErrorIs(t, err, ErrConfig)
}
