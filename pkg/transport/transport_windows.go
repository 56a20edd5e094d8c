//go:build windows

package transport

import (
	"net"

	"github.com/Microsoft/go-winio"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// PipeName is the Windows named-pipe path the daemon listens on,
// mirrored from the teacher's common/socket/socket_windows.go
// AGENT_PIPE convention.
const PipeName = `\\.\pipe\cryptd`

// Listen on Windows opens a named pipe instead of a UNIX socket
// (teacher precedent: socket_windows.go's winio.ListenPipe).
func Listen(path string) (net.Listener, error) {
	l, err := winio.ListenPipe(PipeName, nil)
	if err != nil {
		return nil, werr.Wrap(werr.KindResourceFault, opListen, err)
	}
	return l, nil
}

// Dial on Windows connects to the named pipe.
func Dial(path string) (net.Conn, error) {
	conn, err := winio.DialPipe(PipeName, nil)
	if err != nil {
		return nil, werr.Wrap(werr.KindRpcRuntimeFault, opDial, err)
	}
	return conn, nil
}

// PeerCredentials on Windows recovers only the peer process id via the
// pipe's client PID query; go-winio does not expose a token-based uid
// equivalent to UNIX SO_PEERCRED, so UID is left zero and callers that
// require per-user access control should not rely on the Windows
// transport for spec.md §6's credential-refusal guarantee.
func PeerCredentials(conn net.Conn) (Credentials, error) {
	pipeConn, ok := conn.(winio.PipeConn)
	if !ok {
		return Credentials{}, werr.New(werr.KindRpcRuntimeFault, opPeerCred)
	}
	pid, err := pipeConn.Pid()
	if err != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, err)
	}
	return Credentials{PID: uint32(pid)}, nil
}
