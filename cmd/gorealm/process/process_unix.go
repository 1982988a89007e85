//go:build !windows
// +build !windows

package process

import "syscall"

// Terminate asks the process to shut down gracefully
func (p process) Terminate() error {
	return p.Process.SendSignal(syscall.SIGTERM)
}
