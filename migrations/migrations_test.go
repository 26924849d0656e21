package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements_MySQL(t *testing.T) {
	stmts, err := Statements(MySQL)
	require.NoError(t, err)
	require.Len(t, stmts, 5)

	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
	assert.Contains(t, stmts[4], "UNIQUE KEY uq_message_idem (idempotency_key)")
}

func TestStatements_ClickHouse(t *testing.T) {
	stmts, err := Statements(ClickHouse)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "duebot.message_events")
}

func TestStatements_Missing(t *testing.T) {
	_, err := Statements("nope.sql")
	assert.Error(t, err)
}
