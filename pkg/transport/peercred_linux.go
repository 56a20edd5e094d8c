//go:build linux

package transport

import (
	"net"

	"golang.org/x/sys/unix"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// PeerCredentials fetches the remote peer's credentials off a UNIX
// domain socket via SO_PEERCRED. The server "refuses messages for
// which credentials cannot be obtained" per spec.md §6 — callers
// should treat a non-nil error as that refusal.
func PeerCredentials(conn net.Conn) (Credentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Credentials{}, werr.New(werr.KindRpcRuntimeFault, opPeerCred)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, err)
	}

	var cred *unix.Ucred
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		cred, ctrlErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, err)
	}
	if ctrlErr != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, ctrlErr)
	}
	return Credentials{UID: cred.Uid, PID: uint32(cred.Pid)}, nil
}
