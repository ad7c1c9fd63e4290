package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir stands in for testing.T.Chdir, which needs Go 1.24+.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadConfigDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:8080/", cfg.BaseURL)
	assert.Equal(t, "./uploads", cfg.UploadPath)
	assert.Equal(t, "./data.db", cfg.SQLitePath)
	assert.Empty(t, cfg.GeoIPPath)
	assert.Equal(t, 50.0, cfg.MaxSize)
	assert.Equal(t, 64, cfg.StreamingBuffer)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := `
port: 9000
base_url: "https://files.example.com/"
upload_path: "/srv/uploads"
max_size_mib: 200
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "https://files.example.com/", cfg.BaseURL)
	assert.Equal(t, "/srv/uploads", cfg.UploadPath)
	assert.Equal(t, 200.0, cfg.MaxSize)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "./data.db", cfg.SQLitePath)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("SHAREQR_PORT", "9999")
	t.Setenv("SHAREQR_BASE_URL", "https://env.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "https://env.example.com/", cfg.BaseURL)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte(":\n  - not valid: ["), 0o644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestSizeConversions(t *testing.T) {
	cfg := &Config{MaxSize: 50, StreamingBuffer: 64}

	assert.Equal(t, int64(50*1024*1024), cfg.MaxSizeToBytes())
	assert.Equal(t, 64*1024, cfg.StreamingBufferSizeToBytes())

	// Fractional limits resolve to whole bytes.
	half := &Config{MaxSize: 0.5}
	assert.Equal(t, int64(512*1024), half.MaxSizeToBytes())
}

func TestShareAndQRURLs(t *testing.T) {
	withSlash := &Config{BaseURL: "https://files.example.com/"}
	assert.Equal(t, "https://files.example.com/share/abc", withSlash.ShareURL("abc"))
	assert.Equal(t, "https://files.example.com/api/qr/abc", withSlash.QRURL("abc"))

	withoutSlash := &Config{BaseURL: "https://files.example.com"}
	assert.Equal(t, "https://files.example.com/share/abc", withoutSlash.ShareURL("abc"))
}
