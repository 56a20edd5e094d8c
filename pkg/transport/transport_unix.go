//go:build !windows

package transport

import (
	"net"
	"os"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// Listen binds a UNIX-domain socket at path, removing any stale socket
// file left behind by an unclean shutdown first (teacher precedent:
// common/socket.DaemonListen).
func Listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, werr.Wrap(werr.KindResourceFault, opListen, err)
	}
	return l, nil
}

// Dial connects to the UNIX-domain socket at path.
func Dial(path string) (net.Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opDial, err)
	}
	return conn, nil
}
