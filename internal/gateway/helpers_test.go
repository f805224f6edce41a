package gateway

import (
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func listenLocal() (net.Listener, error) {
	return net.Listen("tcp", ":0")
}

func portOf(ln net.Listener) int {
	return ln.Addr().(*net.TCPAddr).Port
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := listenLocal()
	require.NoError(t, err)
	port := portOf(ln)
	require.NoError(t, ln.Close())
	return port
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
