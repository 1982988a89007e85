// Package process lists and stops the processes of a realm
package process

import (
	"path/filepath"
	"strings"

	psutil_process "github.com/shirou/gopsutil/process"
)

// Process is a running process of the machine
type Process interface {
	Pid() int32
	Executable() string
	Path() (string, error)
	Cmdline() string
	Terminate() error
	IsRunning() bool
}

type process struct {
	*psutil_process.Process
}

func (p process) Pid() int32 {
	return p.Process.Pid
}

func (p process) Executable() string {
	name, _ := p.Process.Name()
	return name
}

func (p process) Path() (string, error) {
	exe, err := p.Process.Exe()
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(exe) {
		return exe, nil
	}
	// some platforms report the command line path, resolve it against the working directory
	cwd, err := p.Process.Cwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, exe), nil
}

func (p process) Cmdline() string {
	args, err := p.Process.CmdlineSlice()
	if err != nil {
		return ""
	}
	return strings.Join(args, " ")
}

func (p process) IsRunning() bool {
	running, err := p.Process.IsRunning()
	return err == nil && running
}

// Processes returns all processes of the machine
func Processes() ([]Process, error) {
	ps, err := psutil_process.Processes()
	if err != nil {
		return nil, err
	}

	procs := make([]Process, 0, len(ps))
	for _, p := range ps {
		procs = append(procs, process{p})
	}
	return procs, nil
}
