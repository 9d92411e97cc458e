package server

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListenAddr(t *testing.T) {
	require.Equal(t, ":8080", listenAddr(""))
	require.Equal(t, ":9000", listenAddr("9000"))
	require.Equal(t, "127.0.0.1:9000", listenAddr("127.0.0.1:9000"))
}
