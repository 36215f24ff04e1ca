package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/impact-portal/internal/middleware"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		tokenUser, recomputeUser, recomputeAll, seedFile = 0, 0, false, ""
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_SECRET", "cli-secret")

	out, err := execute(t, "token", "--user", "42")
	require.NoError(t, err)

	id, ok := middleware.NewAuthMiddleware("cli-secret").ParseToken(strings.TrimSpace(out))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestTokenCommand_RequiresUser(t *testing.T) {
	_, err := execute(t, "token")
	assert.Error(t, err)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	_, err := execute(t, "token", "--user", "42")
	assert.ErrorContains(t, err, "AUTH_SECRET")
}

func TestRecomputeCommand_FlagValidation(t *testing.T) {
	_, err := execute(t, "recompute")
	assert.ErrorContains(t, err, "exactly one of")

	_, err = execute(t, "recompute", "--user", "1", "--all")
	assert.ErrorContains(t, err, "exactly one of")
}

func TestLoadCatalog_Default(t *testing.T) {
	c, err := loadCatalog("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Achievements)
}

func TestOpenEnv_RequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URI", "")

	_, err := openEnv()
	assert.ErrorContains(t, err, "DATABASE_URI")
}
