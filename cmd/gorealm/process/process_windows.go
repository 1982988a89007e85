//go:build windows
// +build windows

package process

// Terminate kills the process since windows processes can not be signaled
func (p process) Terminate() error {
	return p.Process.Kill()
}
