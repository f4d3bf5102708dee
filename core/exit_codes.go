package core

import (
	"os"
	"syscall"
)

// Process exit codes. Signal-driven exits follow the Unix 128+signal
// convention so a supervisor can tell an interrupt from a crash.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	ExitCodeSIGINT  = 130 // 128 + SIGINT(2)
	ExitCodeSIGTERM = 143 // 128 + SIGTERM(15)
)

// ExitCodeForSignal maps the signal that ended the process to its exit
// code. A nil signal means shutdown was programmatic and exits clean.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return ExitCodeSIGINT
	case syscall.SIGTERM:
		return ExitCodeSIGTERM
	default:
		return ExitCodeSuccess
	}
}

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}

// IsSignalExit reports whether the exit code came from a signal.
func IsSignalExit(code int) bool {
	return code == ExitCodeSIGINT || code == ExitCodeSIGTERM
}
