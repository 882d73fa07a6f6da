package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quocson95/onvif-inventory/credentials"
	"github.com/quocson95/onvif-inventory/internal/onviftest"
)

func executeCommand(args ...string) (string, error) {
	buf := new(bytes.Buffer)
	root := newRootCmd()
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func camera(t *testing.T) (*onviftest.Device, string) {
	cam := &onviftest.Device{
		Users: map[string]string{"user2": "pass2"},
		Profiles: []onviftest.Profile{
			{Token: "prof0", Name: "mainStream", Width: 1920, Height: 1080, FrameRate: 25},
			{Token: "prof1", Name: "subStream", Width: 640, Height: 360},
		},
	}
	return cam, cam.Start(t)
}

func TestVersionCommand(t *testing.T) {
	out, err := executeCommand("version")
	require.NoError(t, err)
	assert.Contains(t, out, "onvif version")
}

func TestInventoryCommand(t *testing.T) {
	cam, base := camera(t)
	probe := onviftest.ServeDiscovery(t, onviftest.Advert{Name: "Cam1", XAddrs: []string{base + "/onvif/device_service"}})
	config := writeConfig(t, "Cam1:\n  user1: pass1\n  user2: pass2\n")

	out, err := executeCommand("--config", config, "--no-multicast", "--probe", probe, "--duration", "300ms")
	require.NoError(t, err)

	host := strings.TrimPrefix(base, "http://")
	assert.Equal(t, "mainStream\trtsp://"+host+"/prof0\t1920x1080\t25\nsubStream\trtsp://"+host+"/prof1\t640x360\n", out)
	assert.Equal(t, 2, cam.Count("GetStreamUri"))
}

func TestInventoryCommandExhaustionIsNotAnError(t *testing.T) {
	_, base := camera(t)
	probe := onviftest.ServeDiscovery(t, onviftest.Advert{Name: "Lobby", XAddrs: []string{base + "/onvif/device_service"}})
	config := writeConfig(t, "Cam1:\n  user2: pass2\n")

	out, err := executeCommand("--config", config, "--no-multicast", "--probe", probe, "--duration", "300ms",
		"--fallback", "admin:admin", "--fallback", ":")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestInventoryCommandConfigErrors(t *testing.T) {
	_, err := executeCommand("--config", filepath.Join(t.TempDir(), "missing.yaml"), "--no-multicast", "--probe", "127.0.0.1")
	assert.ErrorIs(t, err, credentials.ErrConfig)

	config := writeConfig(t, "Cam1:\n  user1: pass1\n")
	_, err = executeCommand("--config", config, "--fallback", "nocolon", "--no-multicast", "--probe", "127.0.0.1")
	assert.ErrorIs(t, err, credentials.ErrConfig)

	_, err = executeCommand("--config", config, "--format", "xml", "--no-multicast", "--probe", "127.0.0.1")
	assert.Error(t, err)

	_, err = executeCommand("--config", config, "--no-multicast")
	assert.Error(t, err, "nothing to probe")
}

func TestDiscoverCommand(t *testing.T) {
	probe := onviftest.ServeDiscovery(t, onviftest.Advert{Name: "Front Door", XAddrs: []string{"http://192.0.2.7/onvif/device_service"}})

	out, err := executeCommand("discover", "--no-multicast", "--probe", probe, "--duration", "300ms")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Front Door\thttp://192.0.2.7\t"), out)
}

func TestStreamsCommand(t *testing.T) {
	_, base := camera(t)

	out, err := executeCommand("streams", base, "--user", "user2", "--pass", "pass2", "--info")
	require.NoError(t, err)
	assert.Contains(t, out, "mainStream\trtsp://")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = executeCommand("streams", base, "--user", "user1", "--pass", "pass1")
	assert.Error(t, err)

	_, err = executeCommand("streams", base, "--pass", "pass2")
	assert.Error(t, err)
}

func TestStreamsCommandJSON(t *testing.T) {
	_, base := camera(t)

	out, err := executeCommand("streams", base, "--user", "user2", "--pass", "pass2", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"user":"user2"`)
	assert.NotContains(t, out, "pass2")
}

func TestLoadTableMergesFallbacks(t *testing.T) {
	fallbackFile := filepath.Join(t.TempDir(), "fallback.txt")
	require.NoError(t, os.WriteFile(fallbackFile, []byte("# defaults\nroot:root\n"), 0o600))

	table, err := loadTable(&options{
		configPath:   writeConfig(t, "Cam1:\n  user1: pass1\n"),
		fallbacks:    []string{"admin:admin", ":"},
		fallbackFile: fallbackFile,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, []credentials.Candidate{
		{Username: "admin", Password: "admin"},
		credentials.Anonymous,
		{Username: "root", Password: "root"},
	}, table.Fallback())
}
