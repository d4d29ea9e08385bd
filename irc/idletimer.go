// Copyright (c) 2017 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// released under the MIT license

package irc

import (
	"fmt"
	"sync"
	"time"
)

// session idleness state machine

type TimerState uint

const (
	TimerUnregistered TimerState = iota // session has not completed registration
	TimerActive                         // session is actively sending lines
	TimerIdle                           // session is idle, we sent PING and are waiting for traffic
	TimerDead                           // session was terminated
)

type IdleTimer struct {
	sync.Mutex // tier 1

	// immutable after construction
	registerTimeout time.Duration
	idleTimeout     time.Duration
	quitTimeout     time.Duration
	onPing          func()
	onQuit          func(message string)

	// mutable
	state TimerState
	timer *time.Timer
}

// Initialize sets up an IdleTimer and starts counting registration time.
// onPing runs when an active session goes idle, onQuit when a session
// should be disconnected. A zero duration disables the corresponding stage.
func (it *IdleTimer) Initialize(registerTimeout, idleTimeout, quitTimeout time.Duration, onPing func(), onQuit func(string)) {
	it.registerTimeout = registerTimeout
	it.idleTimeout = idleTimeout
	it.quitTimeout = quitTimeout
	it.onPing = onPing
	it.onQuit = onQuit

	it.Lock()
	defer it.Unlock()
	it.state = TimerUnregistered
	it.resetTimeout()
}

// Registered starts idle tracking for a session that completed registration.
func (it *IdleTimer) Registered() {
	it.Lock()
	defer it.Unlock()
	if it.state == TimerUnregistered {
		it.state = TimerActive
		it.resetTimeout()
	}
}

// Touch records activity from the session.
func (it *IdleTimer) Touch() {
	it.Lock()
	defer it.Unlock()
	// a touch transitions TimerIdle into TimerActive; registration is not
	// extended by traffic
	if it.state == TimerActive || it.state == TimerIdle {
		it.state = TimerActive
		it.resetTimeout()
	}
}

func (it *IdleTimer) processTimeout() {
	var previousState TimerState
	func() {
		it.Lock()
		defer it.Unlock()
		previousState = it.state
		// TimerActive transitions to TimerIdle, all others to TimerDead
		switch it.state {
		case TimerActive:
			// send them a ping, give them time to respond
			it.state = TimerIdle
			it.resetTimeout()
		case TimerDead:
		default:
			it.state = TimerDead
		}
	}()

	switch previousState {
	case TimerActive:
		it.onPing()
	case TimerUnregistered, TimerIdle:
		it.onQuit(it.quitMessage(previousState))
	}
}

// Stop stops counting idle time.
func (it *IdleTimer) Stop() {
	if it == nil {
		return
	}

	it.Lock()
	defer it.Unlock()
	it.state = TimerDead
	it.resetTimeout()
}

func (it *IdleTimer) resetTimeout() {
	if it.timer != nil {
		it.timer.Stop()
	}
	var nextTimeout time.Duration
	switch it.state {
	case TimerUnregistered:
		nextTimeout = it.registerTimeout
	case TimerActive:
		nextTimeout = it.idleTimeout
	case TimerIdle:
		nextTimeout = it.quitTimeout
	case TimerDead:
		return
	}
	if nextTimeout <= 0 {
		return
	}
	if it.timer != nil {
		it.timer.Reset(nextTimeout)
	} else {
		it.timer = time.AfterFunc(nextTimeout, it.processTimeout)
	}
}

func (it *IdleTimer) quitMessage(state TimerState) string {
	switch state {
	case TimerUnregistered:
		return fmt.Sprintf("Registration timeout: %v", it.registerTimeout)
	case TimerIdle:
		return fmt.Sprintf("Ping timeout: %v", it.idleTimeout+it.quitTimeout)
	default:
		// shouldn't happen
		return ""
	}
}
