package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitURI(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, splitURI("/a/b/c"))
	require.Equal(t, []string{"a", "b", "c"}, splitURI("/a/b/c/"))
	require.Equal(t, []string{}, splitURI("/"))
	require.Equal(t, []string{}, splitURI(""))
}
