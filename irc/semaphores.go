// Copyright (c) 2018 Shivaram Lingamneni

package irc

import (
	"runtime"

	"github.com/cartisim/relayd/irc/utils"
)

// Operations that tie up an outside resource (here, connections to the
// message backend) have their concurrency restricted server-wide, in
// addition to any per-session serialization.

const (
	// upper bound on the default; relay.max-concurrent-requests may exceed it
	MaxServerSemaphoreCapacity = 32
)

// ServerSemaphores includes a named Semaphore corresponding to each
// concurrency-limited server operation.
type ServerSemaphores struct {
	// each distinct operation MUST have its own semaphore;
	// methods that acquire a semaphore MUST NOT call methods that acquire another
	RelayPost utils.Semaphore
}

func defaultRelayConcurrency() int {
	capacity := 4 * runtime.NumCPU()
	if capacity > MaxServerSemaphoreCapacity {
		capacity = MaxServerSemaphoreCapacity
	}
	return capacity
}

// NewServerSemaphores creates a new ServerSemaphores; relayCapacity <= 0
// selects a default derived from the number of CPUs.
func NewServerSemaphores(relayCapacity int) (result *ServerSemaphores) {
	if relayCapacity <= 0 {
		relayCapacity = defaultRelayConcurrency()
	}
	result = new(ServerSemaphores)
	result.RelayPost.Initialize(relayCapacity)
	return
}
