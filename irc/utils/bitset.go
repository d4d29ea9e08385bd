// Copyright (c) 2018 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package utils

import "sync/atomic"

// Lock-free bitsets over (constant-sized) arrays of uint32. caps.Set is the
// main consumer; convert the array to a slice to use these functions.

// BitsetGet returns whether a given bit of the bitset is set.
func BitsetGet(set []uint32, position uint) bool {
	idx := position / 32
	bit := position % 32
	block := atomic.LoadUint32(&set[idx])
	return (block & (1 << bit)) != 0
}

// BitsetSet sets a given bit of the bitset to 0 or 1, returning whether it changed.
func BitsetSet(set []uint32, position uint, on bool) (changed bool) {
	idx := position / 32
	bit := position % 32
	addr := &set[idx]
	mask := uint32(1) << bit
	for {
		current := atomic.LoadUint32(addr)
		var desired uint32
		if on {
			desired = current | mask
		} else {
			desired = current & (^mask)
		}
		if current == desired {
			return false
		} else if atomic.CompareAndSwapUint32(addr, current, desired) {
			return true
		}
	}
}

// BitsetClear clears the bitset in-place.
func BitsetClear(set []uint32) {
	for i := 0; i < len(set); i++ {
		atomic.StoreUint32(&set[i], 0)
	}
}

// BitsetEmpty returns whether the bitset is empty.
// Under concurrent modification this can report an empty set that never
// existed as a whole; callers only use it as a hint.
func BitsetEmpty(set []uint32) (empty bool) {
	for i := 0; i < len(set); i++ {
		if atomic.LoadUint32(&set[i]) != 0 {
			return false
		}
	}
	return true
}

// BitsetUnion modifies `set` to be the union of `set` and `other`.
// There is no single consistent view of `other` across word boundaries.
func BitsetUnion(set []uint32, other []uint32) {
	for i := 0; i < len(set); i++ {
		for {
			ourAddr := &set[i]
			ourBlock := atomic.LoadUint32(ourAddr)
			otherBlock := atomic.LoadUint32(&other[i])
			if atomic.CompareAndSwapUint32(ourAddr, ourBlock, ourBlock|otherBlock) {
				break
			}
		}
	}
}

// BitsetSubtract modifies `set` to subtract the contents of `other`.
// The same caveat as BitsetUnion applies.
func BitsetSubtract(set []uint32, other []uint32) {
	for i := 0; i < len(set); i++ {
		for {
			ourAddr := &set[i]
			ourBlock := atomic.LoadUint32(ourAddr)
			otherBlock := atomic.LoadUint32(&other[i])
			if atomic.CompareAndSwapUint32(ourAddr, ourBlock, ourBlock&(^otherBlock)) {
				break
			}
		}
	}
}

// BitsetCopy copies the contents of `other` over `set`.
func BitsetCopy(set []uint32, other []uint32) {
	for i := 0; i < len(set); i++ {
		atomic.StoreUint32(&set[i], atomic.LoadUint32(&other[i]))
	}
}
