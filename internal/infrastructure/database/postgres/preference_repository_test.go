package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// newDryRunDB builds statements without a server.
func newDryRunDB(t *testing.T) *DB {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=test dbname=test sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	require.NoError(t, err)
	return &DB{DB: db}
}

func TestPreferenceQuery(t *testing.T) {
	repo := NewPreferenceRepository(newDryRunDB(t))

	var types []string
	stmt := repo.allowedQuery(context.Background(), "ops").Pluck("event_type", &types).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, `FROM "notification_preferences"`)
	assert.Contains(t, sql, "username = $1 AND enabled = $2")
	assert.Contains(t, sql, "ORDER BY event_type")
	assert.Equal(t, []any{"ops", true}, stmt.Vars)
}

func TestLoadAllowListDryRun(t *testing.T) {
	repo := NewPreferenceRepository(newDryRunDB(t))

	list, err := repo.LoadAllowList(context.Background(), "ops")
	require.NoError(t, err)
	assert.Empty(t, list)
}
