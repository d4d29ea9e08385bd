// Copyright (c) 2019 Shivaram Lingamneni
// released under the MIT license

package utils

import (
	"context"
	"testing"
	"time"
)

func assertEqual(supplied, expected interface{}, t *testing.T) {
	t.Helper()
	if supplied != expected {
		t.Errorf("expected %v but got %v", expected, supplied)
	}
}

func TestTryAcquire(t *testing.T) {
	count := 3
	var sem Semaphore
	sem.Initialize(count)

	for i := 0; i < count; i++ {
		assertEqual(sem.TryAcquire(), true, t)
	}
	// used up the capacity
	assertEqual(sem.TryAcquire(), false, t)
	sem.Release()
	// got one slot back
	assertEqual(sem.TryAcquire(), true, t)
}

func TestAcquireWithTimeout(t *testing.T) {
	var sem Semaphore
	sem.Initialize(1)

	assertEqual(sem.TryAcquire(), true, t)

	// cannot acquire the held semaphore
	assertEqual(sem.AcquireWithTimeout(50*time.Millisecond), false, t)

	sem.Release()
	// can acquire the released semaphore
	assertEqual(sem.AcquireWithTimeout(50*time.Millisecond), true, t)
	sem.Release()
}

func TestAcquireWithContext(t *testing.T) {
	var sem Semaphore
	sem.Initialize(1)
	sem.Acquire()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assertEqual(sem.AcquireWithContext(ctx), false, t)

	sem.Release()
	assertEqual(sem.AcquireWithContext(context.Background()), true, t)
}
