package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Setup
	os.Setenv("ENVIRONMENT", "test")
	os.Setenv("LOG_LEVEL", "error")
	os.Setenv("API_URL", "http://127.0.0.1:1")

	// Run tests
	code := m.Run()

	// Teardown
	os.Exit(code)
}

func TestInitLogger(t *testing.T) {
	t.Run("default json logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "info")
		t.Setenv("LOG_FORMAT", "json")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync() //nolint:errcheck
	})

	t.Run("development console logger", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "console")

		logger, err := initLogger()
		require.NoError(t, err)
		require.NotNil(t, logger)
		defer logger.Sync() //nolint:errcheck
	})

	t.Run("invalid level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "chatty")

		_, err := initLogger()
		assert.Error(t, err)
	})
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "login", "logout", "whoami"}, names)
	assert.NotNil(t, root.PersistentFlags().Lookup("offline"))
}

func runCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CREDENTIALS_PATH", filepath.Join(t.TempDir(), "session.db"))

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

func TestWhoami_Offline(t *testing.T) {
	out, err := runCommand(t, "", "whoami", "--offline")
	require.NoError(t, err)
	assert.Equal(t, "anonymous\n", out)
}

func TestOfflineFlagLeavesEnvironment(t *testing.T) {
	t.Setenv("COURSEHUB_OFFLINE", "")

	out, err := runCommand(t, "", "whoami", "--offline")
	require.NoError(t, err)
	assert.Equal(t, "anonymous\n", out)
	assert.Empty(t, os.Getenv("COURSEHUB_OFFLINE"))
}

func TestLogout_NotSignedIn(t *testing.T) {
	out, err := runCommand(t, "", "logout", "--offline")
	require.NoError(t, err)
	assert.Equal(t, "Not signed in\n", out)
}

func TestLogin_UnknownAccount(t *testing.T) {
	_, err := runCommand(t, "secret123\n", "login", "--offline", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Equal(t, "No account found with this email", err.Error())
}

func TestWhoami_RequiresCognitoWhenOnline(t *testing.T) {
	t.Setenv("COURSEHUB_OFFLINE", "false")
	t.Setenv("COGNITO_USER_POOL_ID", "")
	t.Setenv("COGNITO_CLIENT_ID", "")

	_, err := runCommand(t, "", "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}
