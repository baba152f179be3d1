package bot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  admin_id: 1
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, StorageFile, cfg.Gate.Storage)
	assert.Equal(t, defaultStatePath, cfg.Gate.StatePath)
	assert.Zero(t, cfg.Gate.PasskeyLength)
	assert.Zero(t, cfg.Gate.PasskeyTimeoutMinutes)
	assert.Equal(t, "longpoll", cfg.Core.Telegram.RunMode)
	assert.Empty(t, cfg.Core.Telegram.Token, "token may stay empty until resolved at startup")
}

func TestLoadConfigGateSection(t *testing.T) {
	path := writeConfig(t, `
telegram:
  admin_id: 1
gate:
  storage: Postgres
  state_path: /var/lib/gatebot/state.json
  passkey_length: 8
  passkey_timeout_minutes: 10
database:
  host: localhost
  port: 5432
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Gate.Storage)
	assert.Equal(t, "/var/lib/gatebot/state.json", cfg.Gate.StatePath)
	assert.Equal(t, 8, cfg.Gate.PasskeyLength)
	assert.Equal(t, 10, cfg.Gate.PasskeyTimeoutMinutes)
}

func TestLoadConfigInvalidStorage(t *testing.T) {
	path := writeConfig(t, `
telegram:
  admin_id: 1
gate:
  storage: redis
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gate.storage")
}

func TestLoadConfigRequiresAdminID(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "123:abc"
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin_id")
}

func TestLoadConfigNegativePasskeyLength(t *testing.T) {
	path := writeConfig(t, `
telegram:
  admin_id: 1
gate:
  passkey_length: -1
`)
	_, err := LoadConfig(path)
	require.Error(t, err)
}
