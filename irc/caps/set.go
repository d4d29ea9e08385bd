// Copyright (c) 2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package caps

import (
	"sort"
	"strings"

	"github.com/cartisim/relayd/irc/utils"
)

const bitsetLen = (int(numCapabs) + 31) / 32

// Set holds a set of enabled capabilities; it is safe for concurrent use.
type Set [bitsetLen]uint32

// NewSet returns a new Set, with the given capabilities enabled.
func NewSet(capabs ...Capability) *Set {
	var newSet Set
	newSet.Enable(capabs...)
	return &newSet
}

// NewCompleteSet returns a set with every known capability enabled.
func NewCompleteSet() *Set {
	var newSet Set
	for capab := Capability(0); capab < numCapabs; capab++ {
		newSet.Enable(capab)
	}
	return &newSet
}

// Enable enables the given capabilities.
func (s *Set) Enable(capabs ...Capability) {
	asSlice := s[:]
	for _, capab := range capabs {
		utils.BitsetSet(asSlice, uint(capab), true)
	}
}

// Disable disables the given capabilities.
func (s *Set) Disable(capabs ...Capability) {
	asSlice := s[:]
	for _, capab := range capabs {
		utils.BitsetSet(asSlice, uint(capab), false)
	}
}

// Has returns true if this set has all of the given capabilities.
func (s *Set) Has(capabs ...Capability) bool {
	asSlice := s[:]
	for _, capab := range capabs {
		if !utils.BitsetGet(asSlice, uint(capab)) {
			return false
		}
	}
	return true
}

// Union adds all the capabilities of another set to this set.
func (s *Set) Union(other *Set) {
	utils.BitsetUnion(s[:], other[:])
}

// Subtract removes all the capabilities of another set from this set.
func (s *Set) Subtract(other *Set) {
	utils.BitsetSubtract(s[:], other[:])
}

// Empty returns whether the set is empty.
func (s *Set) Empty() bool {
	return utils.BitsetEmpty(s[:])
}

// List return a list of our enabled capabilities.
func (s *Set) List() (result []Capability) {
	for capab := Capability(0); capab < numCapabs; capab++ {
		if s.Has(capab) {
			result = append(result, capab)
		}
	}
	return
}

// Count returns how many enabled caps this set has.
func (s *Set) Count() int {
	return len(s.List())
}

// String returns all of our enabled capabilities as a sorted, space-separated
// string. values supplies optional `name=value` suffixes for CAP 302 clients.
func (s *Set) String(version Version, values map[Capability]string) string {
	var strs []string
	for _, capability := range s.List() {
		capString := capability.Name()
		if version >= Cap302 {
			if val, exists := values[capability]; exists && val != "" {
				capString += "=" + val
			}
		}
		strs = append(strs, capString)
	}
	sort.Strings(strs)
	return strings.Join(strs, " ")
}
