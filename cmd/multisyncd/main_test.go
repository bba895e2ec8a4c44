package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with an isolated MSS_ environment.
func execute(t *testing.T, args ...string) error {
	t.Helper()
	for _, key := range []string{"MSS_SERVER_NAME", "MSS_DB_DRIVER", "MSS_VALUE_SOURCE", "MSS_LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestFlagsReachEnvironment(t *testing.T) {
	require.NoError(t, execute(t, "--server-name", "lobby", "--db-driver", "memory", "version"))

	assert.Equal(t, "lobby", os.Getenv("MSS_SERVER_NAME"))
	assert.Equal(t, "memory", os.Getenv("MSS_DB_DRIVER"))
}

func TestAddWithoutValueSource(t *testing.T) {
	assert.NoError(t, execute(t, "--server-name", "lobby", "--db-driver", "memory", "add", "%kills%"))
}

func TestRemoveUntracked(t *testing.T) {
	assert.Error(t, execute(t, "--server-name", "lobby", "--db-driver", "memory", "remove", "%kills%"))
}

func TestServeNeedsValueSource(t *testing.T) {
	err := execute(t, "--server-name", "lobby", "--db-driver", "memory", "serve")
	assert.ErrorContains(t, err, "value source")
}

func TestTotalArgs(t *testing.T) {
	assert.Error(t, execute(t, "--db-driver", "memory", "total", "only-one-arg"))
}

func TestReloadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MSS_SYNC_INTERVAL", "5m")
	t.Setenv("MSS_SERVER_NAME", "")

	env := "MSS_SYNC_INTERVAL=2m\nMSS_SERVER_NAME=survival\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cmd := &cobra.Command{Use: "serve"}
	cmd.Flags().String("server-name", "", "")
	require.NoError(t, cmd.Flags().Set("server-name", "lobby"))
	require.NoError(t, viper.BindPFlags(cmd.Flags()))

	require.NoError(t, reloadEnvFiles(cmd))

	// the file replaces what was loaded before, the flag still wins
	assert.Equal(t, "2m", os.Getenv("MSS_SYNC_INTERVAL"))
	assert.Equal(t, "lobby", os.Getenv("MSS_SERVER_NAME"))

	// .env.local overrides .env
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("MSS_SYNC_INTERVAL=30s\n"), 0o600))
	require.NoError(t, reloadEnvFiles(cmd))
	assert.Equal(t, "30s", os.Getenv("MSS_SYNC_INTERVAL"))
}
