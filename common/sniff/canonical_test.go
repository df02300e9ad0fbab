package sniff_test

import (
	"testing"

	"github.com/sagernet/sing-sni/common/sniff"

	"github.com/stretchr/testify/require"
)

func TestCanonicalServerName(t *testing.T) {
	t.Parallel()
	require.Equal(t, "example.com", sniff.CanonicalServerName("Example.COM"))
	require.Equal(t, "example.com", sniff.CanonicalServerName("example.com"))
	require.Equal(t, "", sniff.CanonicalServerName(""))
}

func TestCanonicalServerNameIDNA(t *testing.T) {
	t.Parallel()
	canonical := sniff.CanonicalServerName("bücher.example")
	require.Equal(t, "xn--bcher-kva.example", canonical)
}

func TestCanonicalServerNameIdempotent(t *testing.T) {
	t.Parallel()
	for _, serverName := range []string{"Example.COM", "bücher.example", "sni.example.org", "ällo.Example.COM"} {
		canonical := sniff.CanonicalServerName(serverName)
		require.Equal(t, canonical, sniff.CanonicalServerName(canonical))
	}
}
