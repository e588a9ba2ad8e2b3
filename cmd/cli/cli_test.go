package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSecretRoundTrip(t *testing.T) {
	for _, spec := range []string{"AES/CBC/PKCS5Padding", "AES/GCM/NoPadding"} {
		t.Run(spec, func(t *testing.T) {
			out, err := execute(t, "secret", "encrypt", "hunter2", "--secret", "master", "--cipher", spec)
			require.NoError(t, err)
			enc := strings.TrimSpace(out)
			assert.True(t, strings.HasPrefix(enc, "ENC("))

			out, err = execute(t, "secret", "decrypt", enc, "--secret", "master", "--cipher", spec)
			require.NoError(t, err)
			assert.Equal(t, "hunter2", strings.TrimSpace(out))
		})
	}

	_, err := execute(t, "secret", "decrypt", "Zm9v", "--secret", "other")
	assert.Error(t, err)
}

func TestSecretRequiresPassphrase(t *testing.T) {
	t.Setenv(masterSecretEnv, "")
	_, err := execute(t, "secret", "encrypt", "x")
	assert.Error(t, err)
}

func TestTokenIssueAndInspect(t *testing.T) {
	cfg := writeConfig(t, "security:\n  signing_mode: 1\n  secret: cli-secret\n  issuer: txauth-cli\n")

	out, err := execute(t, "token", "issue", "--config", cfg, "--subject", "alice", "--role", "Admin")
	require.NoError(t, err)
	var issued map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.NotEmpty(t, issued["refresh_token"])

	out, err = execute(t, "token", "inspect", "--config", cfg, issued["access_token"].(string))
	require.NoError(t, err)
	var claims map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &claims))
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "Admin", claims["rol"])
	assert.Equal(t, "txauth-cli", claims["iss"])

	out, err = execute(t, "token", "issue", "--config", cfg, "--subject", "alice", "--type", "tx-users")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &issued))
	assert.Equal(t, "tx-users", issued["token_type"])
	assert.Nil(t, issued["refresh_token"])

	_, err = execute(t, "token", "inspect", "--config", cfg, "not-a-token")
	assert.Error(t, err)
}

func TestKeysInitRequiresAsymmetricMode(t *testing.T) {
	cfg := writeConfig(t, "security:\n  signing_mode: 1\n  secret: s\n")
	_, err := execute(t, "keys", "init", "--config", cfg)
	assert.Error(t, err)
}

func TestKeysInitGeneratesPair(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, "security:\n  signing_mode: 2\n  key_store: file\n"+
		"  public_key_path: "+filepath.Join(dir, "pub.pem")+"\n"+
		"  private_key_path: "+filepath.Join(dir, "priv.pem")+"\n")

	out, err := execute(t, "keys", "init", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "alg=RS256")
	assert.FileExists(t, filepath.Join(dir, "priv.pem"))

	again, err := execute(t, "keys", "init", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, out, again, "existing keys are reused")
}
