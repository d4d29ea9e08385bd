// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

// Package flock guards the datastore against concurrent servers.
package flock

import (
	"errors"
	"path/filepath"

	"github.com/gofrs/flock"
)

var (
	ErrLocked = errors.New("Couldn't acquire flock (is another relayd running?)")
)

// Flocker is a held lock. gofrs/flock.Flock does not implement sync.Locker
// because its Unlock returns an error.
type Flocker interface {
	Unlock() error
}

type noopFlocker struct{}

func (n noopFlocker) Unlock() error {
	return nil
}

// LockPath returns the lock file path used for a datastore path.
func LockPath(datastorePath string) string {
	return filepath.Join(filepath.Dir(datastorePath), "."+filepath.Base(datastorePath)+".lock")
}

// TryAcquireFlock takes a non-blocking exclusive lock on path. An in-memory
// datastore (":memory:" or "") needs no lock.
func TryAcquireFlock(datastorePath string) (fl Flocker, err error) {
	if datastorePath == "" || datastorePath == ":memory:" {
		return noopFlocker{}, nil
	}
	f := flock.New(LockPath(datastorePath))
	success, err := f.TryLock()
	if err != nil {
		return nil, err
	} else if !success {
		return nil, ErrLocked
	}
	return f, nil
}
