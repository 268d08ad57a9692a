package systems

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettingsFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSettingsLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "culling.toml")
	writeSettingsFile(t, path, `
capacity = 256
force_passthrough_culling = true
enable_debug_logging = true
`)

	ss, err := NewSettingsSystem(path)
	require.NoError(t, err)
	defer ss.Shutdown()

	current := ss.Current()
	assert.Equal(t, uint32(256), current.Capacity)
	assert.True(t, current.ForcePassthroughCulling)
	assert.True(t, current.EnableDebugLogging)
	// Unspecified keys keep their defaults.
	assert.True(t, current.UseHierarchicalCulling)
	assert.True(t, current.AllowGPUCPUFallback)
}

func TestSettingsMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	ss, err := NewSettingsSystem(path)
	require.NoError(t, err)
	defer ss.Shutdown()

	assert.Equal(t, DefaultCullSettings(), ss.Current())
}

func TestSettingsInvalidFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "culling.toml")
	writeSettingsFile(t, path, "capacity = 0")

	_, err := NewSettingsSystem(path)
	assert.Error(t, err)

	writeSettingsFile(t, path, "not [valid toml")
	_, err = NewSettingsSystem(path)
	assert.Error(t, err)
}

func TestSettingsSubscribeReceivesCurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "culling.toml")
	writeSettingsFile(t, path, "capacity = 128")

	ss, err := NewSettingsSystem(path)
	require.NoError(t, err)
	defer ss.Shutdown()

	var received CullSettings
	ss.Subscribe(func(s CullSettings) { received = s })

	assert.Equal(t, uint32(128), received.Capacity)
}

func TestSettingsHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "culling.toml")
	writeSettingsFile(t, path, "capacity = 64")

	ss, err := NewSettingsSystem(path)
	require.NoError(t, err)
	defer ss.Shutdown()
	require.NoError(t, ss.Initialize())

	updates := make(chan CullSettings, 8)
	ss.Subscribe(func(s CullSettings) { updates <- s })
	// Drain the immediate notification.
	<-updates

	writeSettingsFile(t, path, "capacity = 512\nforce_passthrough_culling = true")

	require.Eventually(t, func() bool {
		current := ss.Current()
		return current.Capacity == 512 && current.ForcePassthroughCulling
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSettingsFlagsMapping(t *testing.T) {
	s := CullSettings{
		ForcePassthroughCulling: true,
		UseHierarchicalCulling:  true,
		EnableValidationLogging: true,
	}
	flags := s.Flags()
	assert.True(t, flags.ForcePassthroughCulling)
	assert.True(t, flags.UseHierarchicalCulling)
	assert.True(t, flags.EnableValidationLogging)
	assert.False(t, flags.AllowGPUCPUFallback)
	assert.False(t, flags.EnableDebugLogging)
}
