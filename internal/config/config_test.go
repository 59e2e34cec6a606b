package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "cp_id: CP01\nws_url: ws://localhost:9000/\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "CP01", cfg.CpId)
	assert.Equal(t, []string{"ocpp1.6", "ocpp1.5"}, cfg.Subprotocols)
	assert.Equal(t, 3, cfg.RemoteStartDelaySeconds)
	assert.Equal(t, "Accepted", cfg.RemoteStartStopResponse)
	assert.Equal(t, "durable.db", cfg.DurableStatePath)
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
cp_id: CP02
ws_url: ws://cs.example.com/
subprotocols: ["ocpp1.6"]
remote_start_delay_seconds: 5
remote_start_stop_response: Rejected
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ocpp1.6"}, cfg.Subprotocols)
	assert.Equal(t, 5, cfg.RemoteStartDelaySeconds)
	assert.Equal(t, "Rejected", cfg.RemoteStartStopResponse)
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing cp_id", "ws_url: ws://localhost/\n"},
		{"missing ws_url", "cp_id: CP01\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvalidRemoteStartStopResponse(t *testing.T) {
	path := writeConfig(t, "cp_id: CP01\nws_url: ws://localhost/\nremote_start_stop_response: Maybe\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_NegativeRemoteStartDelay(t *testing.T) {
	path := writeConfig(t, "cp_id: CP01\nws_url: ws://localhost/\nremote_start_delay_seconds: -1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
