package core

import (
	"os"
	"syscall"
	"testing"
)

func TestExitCodeForSignal(t *testing.T) {
	tests := []struct {
		name string
		sig  os.Signal
		want int
	}{
		{"interrupt", os.Interrupt, ExitCodeSIGINT},
		{"sigterm", syscall.SIGTERM, ExitCodeSIGTERM},
		{"programmatic", nil, ExitCodeSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCodeForSignal(tt.sig); got != tt.want {
				t.Errorf("ExitCodeForSignal(%v) = %d, want %d", tt.sig, got, tt.want)
			}
		})
	}
}

func TestExitCodeName(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{ExitCodeSuccess, "success"},
		{ExitCodeError, "error"},
		{ExitCodeSIGINT, "interrupted (SIGINT)"},
		{ExitCodeSIGTERM, "terminated (SIGTERM)"},
		{42, "unknown"},
	}

	for _, tt := range tests {
		if got := ExitCodeName(tt.code); got != tt.want {
			t.Errorf("ExitCodeName(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestIsSignalExit(t *testing.T) {
	if !IsSignalExit(ExitCodeSIGINT) || !IsSignalExit(ExitCodeSIGTERM) {
		t.Error("IsSignalExit() = false for signal codes, want true")
	}
	if IsSignalExit(ExitCodeSuccess) || IsSignalExit(ExitCodeError) {
		t.Error("IsSignalExit() = true for non-signal codes, want false")
	}
}
