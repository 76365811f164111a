package db

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/config"
)

func TestPostgresURL(t *testing.T) {
	raw := PostgresURL(config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "taskboard",
		Password: "p@ss word",
		DBName:   "taskboard_db",
	})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5433", u.Host)
	assert.Equal(t, "/taskboard_db", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))

	password, ok := u.User.Password()
	require.True(t, ok)
	assert.Equal(t, "p@ss word", password)
}

func TestPostgresURLRequiresSSL(t *testing.T) {
	raw := PostgresURL(config.DatabaseConfig{Host: "h", Port: 5432, DBName: "d", UseSSL: true})

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
}
