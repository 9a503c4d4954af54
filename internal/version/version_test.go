package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetVersion(t *testing.T) {
	t.Cleanup(func() { Version, Commit = "dev", "" })

	require.Equal(t, "dev", GetVersion())

	Version, Commit = "1.2.0", "8f3c2a91d04b"
	require.Equal(t, "1.2.0+8f3c2a9", GetVersion())
}
