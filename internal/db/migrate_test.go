package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbeddedInPairs(t *testing.T) {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"migrations/000001_create_users.up.sql",
		"migrations/000001_create_users.down.sql",
		"migrations/000002_create_tweets.up.sql",
		"migrations/000002_create_tweets.down.sql",
	}, names)
}
