// Package transport provides the local IPC transport the daemon and
// its clients share: a UNIX-domain stream socket with peer-credential
// retrieval (spec.md §6), rooted in the same "dotfile under the home
// directory" convention the teacher uses for its own socket paths.
package transport

import (
	"os"
	"os/user"
	"path/filepath"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opDial = "transport.Dial"
const opListen = "transport.Listen"

// currentUser returns the invoking user's name, preferring $USER to
// avoid an extra syscall on the common path (teacher precedent:
// common/socket.User()).
func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}

// HomeDir returns the invoking user's home directory.
func HomeDir() string {
	if u, err := user.Lookup(currentUser()); err == nil && u != nil {
		return u.HomeDir
	}
	return os.Getenv("HOME")
}

// StateDir returns (creating if necessary) the directory holding the
// daemon's socket file and persisted state, "$HOME/.cryptd".
func StateDir() (string, error) {
	dir := filepath.Join(HomeDir(), ".cryptd")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", werr.Wrap(werr.KindResourceFault, opListen, err)
	}
	return dir, nil
}

// SocketPath returns the UNIX-domain socket path the daemon listens on.
func SocketPath() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cryptd.sock"), nil
}

