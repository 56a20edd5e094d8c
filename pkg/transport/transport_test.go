package transport

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenDialRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.sock"

	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			accepted <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, err = conn.Read(buf)
		accepted <- err
	}()

	conn, err := Dial(path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	require.NoError(t, <-accepted)
}

func TestListenRemovesStaleSocket(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/stale.sock"

	first, err := Listen(path)
	require.NoError(t, err)
	first.Close()

	second, err := Listen(path)
	require.NoError(t, err)
	defer second.Close()
}

func TestStateDirIsPrivate(t *testing.T) {
	dir, err := StateDir()
	require.NoError(t, err)
	assert.NotEmpty(t, dir)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
}
