package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFoldFunctionLowersUnicode(t *testing.T) {
	conn, err := Open(Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	var got string
	require.NoError(t, conn.QueryRow(`SELECT fold(?)`, "Reclamo ÁREA Técnica").Scan(&got))
	require.Equal(t, "reclamo área técnica", got)
	require.Equal(t, got, Fold("Reclamo ÁREA Técnica"))

	var null *string
	require.NoError(t, conn.QueryRow(`SELECT fold(NULL)`).Scan(&null))
	require.Nil(t, null)
}
