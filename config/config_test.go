package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadUsesDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Camera.Timeout)
	assert.Equal(t, "239.255.255.250:3702", cfg.Discovery.MulticastAddr)
	assert.Equal(t, "tcp", cfg.Playback.RTSPTransport)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromYAML(t *testing.T) {
	path := writeTempConfig(t, `
server:
  address: ":9000"
camera:
  address: "10.0.0.5"
  username: "admin"
  password: "admin"
  timeout: 3s
playback:
  rtsp_transport: "udp"
  network_caching: 1500ms
  frame_rate: 2
storage:
  root: "/var/lib/onvif"
logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, "10.0.0.5", cfg.Camera.Address)
	assert.Equal(t, 3*time.Second, cfg.Camera.Timeout)
	assert.Equal(t, "udp", cfg.Playback.RTSPTransport)
	assert.Equal(t, 1500*time.Millisecond, cfg.Playback.NetworkCaching)
	assert.Equal(t, 2, cfg.Playback.FrameRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, filepath.Join("/var/lib/onvif", "credentials.yaml"), cfg.CredentialsPath())
	assert.Equal(t, filepath.Join("/var/lib/onvif", "ONVIFScreenshots"), cfg.CaptureDir("ONVIFScreenshots"))
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, "camera:\n  address: \"10.0.0.5\"\n")
	t.Setenv("ONVIF_CAMERA_ADDRESS", "10.0.0.9")
	t.Setenv("ONVIF_PASSWORD", "from-env")
	t.Setenv("ONVIF_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.9", cfg.Camera.Address)
	assert.Equal(t, "from-env", cfg.Camera.Password)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad yaml", "server: [unterminated"},
		{"transport", "playback:\n  rtsp_transport: \"http\"\n"},
		{"ttl", "discovery:\n  ttl: 0\n"},
		{"level", "logging:\n  level: \"loud\"\n"},
		{"format", "logging:\n  format: \"xml\"\n"},
		{"timeout", "camera:\n  timeout: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())

	cfg := Default()
	cfg.Storage.CredentialsFile = "/etc/onvif/credentials.yaml"
	assert.Equal(t, "/etc/onvif/credentials.yaml", cfg.CredentialsPath())
}
