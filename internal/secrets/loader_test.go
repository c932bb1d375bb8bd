package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFromValue(t *testing.T) {
	secret, err := Load(Source{Name: "api key", Value: " inline-secret \n"})
	require.NoError(t, err)
	require.Equal(t, "inline-secret", secret)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TEST_API_KEY", " env-secret ")

	secret, err := Load(Source{Name: "api key", Env: "TEST_API_KEY", Value: "inline-secret"})
	require.NoError(t, err)
	require.Equal(t, "env-secret", secret, "environment must win over the inline value")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))

	t.Setenv("TEST_API_KEY", "env-secret")

	secret, err := Load(Source{Name: "api key", File: path, Env: "TEST_API_KEY"})
	require.NoError(t, err)
	require.Equal(t, "file-secret", secret, "file must win over the environment")
}

func TestLoadFileErrors(t *testing.T) {
	_, err := Load(Source{Name: "api key", File: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err = Load(Source{Name: "api key", File: empty})
	require.Error(t, err)
}

func TestLoadUnconfigured(t *testing.T) {
	_, err := Load(Source{Name: "api key"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "api key")
}
