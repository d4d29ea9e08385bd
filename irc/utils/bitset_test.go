// Copyright (c) 2018 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package utils

import "testing"

type testBitset [2]uint32

func TestSets(t *testing.T) {
	var t1 testBitset
	t1s := t1[:]

	if BitsetGet(t1s, 0) || BitsetGet(t1s, 31) || BitsetGet(t1s, 32) || BitsetGet(t1s, 63) {
		t.Error("no bits should be set in a zero bitset")
	}
	if !BitsetEmpty(t1s) {
		t.Error("zero bitset should be empty")
	}

	var i uint
	for i = 0; i < 64; i++ {
		if i%2 == 0 {
			if !BitsetSet(t1s, i, true) {
				t.Error("setting an unset bit should return true")
			}
		}
	}

	if BitsetSet(t1s, 24, true) {
		t.Error("setting an already-set bit should return false")
	}

	if !(BitsetGet(t1s, 0) && !BitsetGet(t1s, 1) && BitsetGet(t1s, 32) && BitsetGet(t1s, 40) && !BitsetGet(t1s, 63)) {
		t.Error("exactly the even-numbered bits should be set")
	}

	if !BitsetSet(t1s, 40, false) {
		t.Error("removing a set bit should return true")
	}
	if BitsetGet(t1s, 40) {
		t.Error("remove doesn't work")
	}
	if BitsetSet(t1s, 40, false) {
		t.Error("removing an unset bit should return false")
	}

	var t2 testBitset
	t2s := t2[:]
	for i = 0; i < 64; i++ {
		if i%2 == 1 {
			BitsetSet(t2s, i, true)
		}
	}

	BitsetUnion(t1s, t2s)
	for i = 0; i < 64; i++ {
		expected := i != 40
		if BitsetGet(t1s, i) != expected {
			t.Errorf("bit %d after union: expected %t", i, expected)
		}
	}

	BitsetSubtract(t1s, t2s)
	for i = 0; i < 64; i++ {
		expected := i%2 == 0 && i != 40
		if BitsetGet(t1s, i) != expected {
			t.Errorf("bit %d after subtract: expected %t", i, expected)
		}
	}

	var t3 testBitset
	t3s := t3[:]
	BitsetCopy(t3s, t1s)
	if t3 != t1 {
		t.Error("copy should produce an identical bitset")
	}

	BitsetClear(t1s)
	if !BitsetEmpty(t1s) {
		t.Error("cleared bitset should be empty")
	}
}
