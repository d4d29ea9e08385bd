// Copyright (c) 2022 Shivaram Lingamneni
// released under the MIT license

package utils

import (
	"sync/atomic"
)

/*
ConfigStore supports the rehash pattern used by the server:

 1. Load and validate a config (this can be arbitrarily expensive)
 2. Use Set() to install the config
 3. Use Get() to access the config from any goroutine
 4. An installed config must never be modified afterwards; a rehash
    installs a fresh pointer instead.
*/
type ConfigStore[T any] struct {
	ptr atomic.Pointer[T]
}

func (c *ConfigStore[T]) Get() *T {
	return c.ptr.Load()
}

func (c *ConfigStore[T]) Set(ptr *T) {
	c.ptr.Store(ptr)
}

// Swap installs a new value and returns the previous one (nil if unset).
func (c *ConfigStore[T]) Swap(ptr *T) (old *T) {
	return c.ptr.Swap(ptr)
}
