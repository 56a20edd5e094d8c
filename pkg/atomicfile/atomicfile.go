// Package atomicfile writes files atomically: write to a temp file in
// the same directory, then rename over the destination, so a reader
// never observes a partially-written key-database journal.
//
// The teacher depends on github.com/youtube/vitess for this exact
// helper (ioutil2.WriteFileAtomic); that module pulls in an entire
// MySQL-proxy dependency graph for four lines of logic no other repo
// in the corpus uses, so this package reimplements the pattern instead
// of the dependency (see DESIGN.md).
package atomicfile

import (
	"os"
	"path/filepath"

	"cryptdaemon.dev/cryptd/pkg/werr"
)

const opWrite = "atomicfile.WriteFile"

// WriteFile writes data to path atomically: a temp file in path's
// directory is written and fsynced, then renamed over path.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return werr.Wrap(werr.KindResourceFault, opWrite, err)
	}
	return nil
}
