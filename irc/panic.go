// Copyright (c) 2021 Shivaram Lingamneni
// released under the MIT license

package irc

import (
	"fmt"
	"runtime/debug"

	"github.com/cartisim/relayd/irc/logger"
)

// HandlePanic is a general-purpose panic handler for ad-hoc goroutines.
// Because of the semantics of `recover`, it must be called directly
// from the routine on whose call stack the panic would occur, with `defer`,
// e.g. `defer server.HandlePanic(nil)`
func (server *Server) HandlePanic(restartable func()) {
	if r := recover(); r != nil {
		server.logger.Error(logger.TypeInternal, fmt.Sprintf("Panic encountered: %v\n%s", r, debug.Stack()))
		if restartable != nil {
			go func() {
				defer server.HandlePanic(restartable)
				restartable()
			}()
		}
	}
}
