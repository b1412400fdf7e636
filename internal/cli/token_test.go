package cli

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rostersync/internal/devserver"
)

func TestToken_MintsVerifiableToken(t *testing.T) {
	clearEnv(t)

	out, err := execute(t, "token", "--secret", testSecret, "--subject", "alice", "--ttl", "1h")
	require.NoError(t, err)

	claims, err := devserver.VerifyToken([]byte(testSecret), strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestToken_JSON(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSecret, testSecret)

	out, err := execute(t, "--format", "json", "token")
	require.NoError(t, err)

	var result TokenResult
	decodeData(t, out, &result)
	assert.Equal(t, "rostersync", result.Subject)
	_, err = devserver.VerifyToken([]byte(testSecret), result.Token)
	assert.NoError(t, err)
}

func TestToken_Errors(t *testing.T) {
	clearEnv(t)

	_, err := execute(t, "token")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no token secret")

	_, err = execute(t, "token", "--secret", "s", "--ttl", "-1h")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
