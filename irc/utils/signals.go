// Copyright (c) 2020 Shivaram Lingamneni
// released under the MIT license

package utils

import (
	"os"
	"syscall"
)

var (
	// ServerExitSignals are the signals the server will exit on.
	ServerExitSignals = []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	}

	// ServerRehashSignals cause the config file to be reloaded.
	ServerRehashSignals = []os.Signal{
		syscall.SIGHUP,
	}

	// ServerTracebackSignals dump all goroutine stacks to the log.
	ServerTracebackSignals = []os.Signal{
		syscall.SIGUSR1,
	}
)
