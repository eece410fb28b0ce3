package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/InverskProperty/propsk-sub012/internal/services"
)

// run executes portfolioctl against a fresh in-memory store.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ENV", "test")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("TAGSYNC_ENABLED", "false")
	t.Setenv("REDIS_ADDR", "")

	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSyncAll_IntegrationDisabled(t *testing.T) {
	// Act
	out, err := run(t, "sync", "all")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Sync skipped: integration disabled\n", out)
}

func TestSyncAll_JSON(t *testing.T) {
	// Act
	out, err := run(t, "sync", "all", "--json")

	// Assert
	require.NoError(t, err)
	var result services.SyncResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.IntegrationOff)
}

func TestSyncPortfolio_InvalidID(t *testing.T) {
	// Act
	_, err := run(t, "sync", "portfolio", "abc")

	// Assert
	assert.ErrorContains(t, err, `invalid portfolio id "abc"`)
}

func TestSyncPortfolio_Unknown(t *testing.T) {
	// Act
	_, err := run(t, "sync", "portfolio", "12")

	// Assert
	assert.ErrorIs(t, err, services.ErrPortfolioNotFound)
}

func TestMigrate_RequiresPostgres(t *testing.T) {
	// Act
	_, err := run(t, "migrate")

	// Assert
	assert.ErrorContains(t, err, "STORE_DRIVER=postgres")
}

func TestAdoptTags_RequiresIntegration(t *testing.T) {
	// Act
	_, err := run(t, "adopt-tags")

	// Assert
	assert.ErrorContains(t, err, "TAGSYNC_ENABLED")
}

func TestAnalyticsAndStats(t *testing.T) {
	// Act
	out, err := run(t, "analytics")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Recalculated analytics for 0 portfolios\n", out)

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Active: 0")
}

func TestMigrateLegacy_Empty(t *testing.T) {
	// Act
	out, err := run(t, "migrate-legacy", "--as", "9")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Migrated: 0, Skipped: 0, Errors: 0\n", out)
}
