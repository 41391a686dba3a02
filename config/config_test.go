package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":3978", cfg.Server.Addr)
	assert.Equal(t, StateBackendMemory, cfg.State.Backend)
	assert.Equal(t, 30*time.Second, cfg.Auth.RemoteTimeout)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
auth:
  remote: true
  remoteTimeout: 45s
  connections:
    - name: AzureAD
      serviceProviderDisplayName: Azure Active Directory
state:
  backend: redis
  redis:
    addr: redis.internal:6379
router:
  skillMode: true
  manifestPaths:
    - manifests/calendar.json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.True(t, cfg.Auth.Remote)
	assert.Equal(t, 45*time.Second, cfg.Auth.RemoteTimeout)
	assert.Equal(t, StateBackendRedis, cfg.State.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.State.Redis.Addr)
	assert.True(t, cfg.Router.SkillMode)
	assert.Equal(t, 30*time.Second, cfg.Transport.RequestTimeout, "untouched defaults survive")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.State.Backend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.State.Backend = StateBackendRedis
	cfg.State.Redis.Addr = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Telemetry.SampleRatio = 1.5
	assert.Error(t, cfg.Validate())
}

func TestValidate_UnknownProviderConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  connections:
    - name: gh
      serviceProviderDisplayName: GitHub
`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
