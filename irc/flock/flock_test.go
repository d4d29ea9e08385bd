// Copyright (c) 2026 Cartisim contributors
// released under the MIT license

package flock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquireFlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relayd.db")

	first, err := TryAcquireFlock(path)
	require.NoError(t, err)

	_, err = TryAcquireFlock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())

	again, err := TryAcquireFlock(path)
	require.NoError(t, err)
	require.NoError(t, again.Unlock())
}

func TestMemoryDatastoreNeedsNoLock(t *testing.T) {
	fl, err := TryAcquireFlock(":memory:")
	require.NoError(t, err)
	assert.NoError(t, fl.Unlock())
}

func TestLockPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/var/lib/relayd", ".relayd.db.lock"), LockPath("/var/lib/relayd/relayd.db"))
}
