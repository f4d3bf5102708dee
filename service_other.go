//go:build !windows

package main

// Service integration is Windows-only; on every other platform the engine
// runs in the foreground and these stubs report nothing to do.

func RunAsService() (bool, error) {
	return false, nil
}

func HandleServiceCommand(args []string) bool {
	return false
}
