package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupOldLogsKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	for i := 1; i <= 5; i++ {
		name := filepath.Join(dir, fmt.Sprintf("biocloud-2026-01-0%dT00-00-00.log", i))
		require.NoError(t, os.WriteFile(name, nil, 0644))
	}

	require.NoError(t, cleanupOldLogs(dir, 2))

	files, err := filepath.Glob(filepath.Join(dir, "biocloud-*.log"))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "biocloud-2026-01-04T00-00-00.log"),
		filepath.Join(dir, "biocloud-2026-01-05T00-00-00.log"),
	}, files)
}

func TestNewLoggerWritesToLogDir(t *testing.T) {
	dir := t.TempDir()
	logger, closer, err := NewLogger(&Config{Environment: "prod", LogDir: dir})
	require.NoError(t, err)

	logger.Info("hello")
	require.NoError(t, closer.Close())

	files, err := filepath.Glob(filepath.Join(dir, "biocloud-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
