package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/dbagent/internal/db"
)

func TestDBAgent_MCP_Server_ConfigValidate(t *testing.T) {
	t.Parallel()

	t.Run("requires logger", func(t *testing.T) {
		t.Parallel()
		cfg := Config{DB: failingDB{}}
		require.EqualError(t, cfg.Validate(), "logger is required")
	})

	t.Run("requires database", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger()}
		require.EqualError(t, cfg.Validate(), "database is required")
	})

	t.Run("rejects unknown transport", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(), DB: failingDB{}, Transport: "sse"}
		require.ErrorContains(t, cfg.Validate(), `unsupported transport "sse"`)
	})

	t.Run("fills defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{Logger: testLogger(), DB: failingDB{}}
		require.NoError(t, cfg.Validate())
		require.Equal(t, TransportStdio, cfg.Transport)
		require.Equal(t, "dev", cfg.Version)
		require.Equal(t, defaultListenAddr, cfg.ListenAddr)
		require.Equal(t, defaultReadHeaderTimeout, cfg.ReadHeaderTimeout)
		require.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout)
		require.Equal(t, db.DefaultSampleRows, cfg.SampleRows)
	})
}
