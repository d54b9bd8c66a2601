// Package storage writes downloaded media into a single flat directory.
//
// There is no index or database: a file's presence under its final name
// is the record that it was downloaded, so Exists always asks the
// filesystem and survives restarts.
//
// Save writes to a temporary file in the same directory and renames it
// into place. A crash mid-write leaves only a ".likesync-*.tmp" file, which
// CleanTemp removes on the next start.
//
// Usage:
//
//	manager, err := storage.NewManager("./pic", false)
//	if err != nil {
//	    return err
//	}
//
//	if !manager.Exists(candidate.Filename) {
//	    err = manager.Save(bytes.NewReader(data), candidate.Filename)
//	}
package storage
