// Copyright (c) 2022 Valentin Lorentz
// released under the MIT license

// Package kv defines a small transactional key-value abstraction shaped like
// buntdb's API, so that alternative backends (such as MySQL) can be used
// in place of buntdb itself.
package kv

import (
	"errors"
)

var (
	// ErrNotFound is returned by Get and Delete for missing keys.
	ErrNotFound = errors.New("kv: key not found")
	// ErrTxNotWritable is returned by mutations inside View.
	ErrTxNotWritable = errors.New("kv: tx not writable")
)

type Tx interface {
	// AscendKeys iterates, in key order, over keys matching a glob pattern
	// (`*` and `?` wildcards); iteration stops when iterator returns false.
	AscendKeys(pattern string, iterator func(key, value string) bool) error
	Delete(key string) (val string, err error)
	Get(key string) (val string, err error)
	Set(key string, value string) (previousValue string, replaced bool, err error)
}

type Store interface {
	Close() error
	Update(fn func(tx Tx) error) error
	View(fn func(tx Tx) error) error
}
