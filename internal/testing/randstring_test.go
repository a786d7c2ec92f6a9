package testing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandString(t *testing.T) {
	s := RandString()
	require.Len(t, s, 10)
	for _, r := range s {
		require.True(t, strings.ContainsRune(nameAlphabet, r))
	}
}
