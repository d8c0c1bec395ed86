//go:build unix

package sandbox

import (
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

func setCPULimit(seconds uint64) error {
	return unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds + 1})
}

// forbidFileWrites caps file size at zero. SIGXFSZ is ignored so a blocked
// write surfaces as an error instead of killing the worker.
func forbidFileWrites() error {
	signal.Ignore(syscall.SIGXFSZ)
	return unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: 0, Max: 0})
}
