//go:build darwin

package transport

import (
	"net"

	"golang.org/x/sys/unix"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

// PeerCredentials fetches the remote peer's credentials off a UNIX
// domain socket via LOCAL_PEERCRED, the darwin equivalent of Linux's
// SO_PEERCRED (teacher precedent: common/socket's darwin/unix split in
// socket_darwin.go vs socket_unix.go).
func PeerCredentials(conn net.Conn) (Credentials, error) {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return Credentials{}, werr.New(werr.KindRpcRuntimeFault, opPeerCred)
	}
	raw, err := unixConn.SyscallConn()
	if err != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, err)
	}

	var cred *unix.Xucred
	var ctrlErr error
	err = raw.Control(func(fd uintptr) {
		cred, ctrlErr = unix.GetsockoptXucred(int(fd), unix.SOL_LOCAL, unix.LOCAL_PEERCRED)
	})
	if err != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, err)
	}
	if ctrlErr != nil {
		return Credentials{}, werr.Wrap(werr.KindRpcRuntimeFault, opPeerCred, ctrlErr)
	}
	return Credentials{UID: cred.Uid, PID: 0}, nil
}
