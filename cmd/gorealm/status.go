package main

import (
	"path/filepath"

	"github.com/gorealm/gorealm/cmd/gorealm/process"
	"github.com/gorealm/gorealm/engine/config"
)

const (
	componentMaster = "master"
	componentLogin  = "login"
	componentWorld  = "world"
)

// RealmStatus is the set of realm processes running from the bin directory
type RealmStatus struct {
	MasterProcs []process.Process
	LoginProcs  []process.Process
	WorldProcs  []process.Process
}

// IsRunning returns if any process of the realm is running
func (rs *RealmStatus) IsRunning() bool {
	return len(rs.MasterProcs) > 0 || len(rs.LoginProcs) > 0 || len(rs.WorldProcs) > 0
}

func binaryPath(component string) string {
	return filepath.Join(args.binDir, component+BinaryExtension)
}

func detectRealmStatus() *RealmStatus {
	procs, err := process.Processes()
	checkErrorOrQuit(err, "list processes failed")

	rs := &RealmStatus{}
	for _, proc := range procs {
		path, err := proc.Path()
		if err != nil {
			continue
		}
		switch path {
		case binaryPath(componentMaster):
			rs.MasterProcs = append(rs.MasterProcs, proc)
		case binaryPath(componentLogin):
			rs.LoginProcs = append(rs.LoginProcs, proc)
		case binaryPath(componentWorld):
			rs.WorldProcs = append(rs.WorldProcs, proc)
		}
	}
	return rs
}

func status() {
	showRealmStatus(detectRealmStatus())
}

func showRealmStatus(rs *RealmStatus) {
	showMsg("%d master running, %d login running, %d/%d worlds running",
		len(rs.MasterProcs), len(rs.LoginProcs), len(rs.WorldProcs), len(config.GetWorldIDs()))

	var listProcs []process.Process
	listProcs = append(listProcs, rs.MasterProcs...)
	listProcs = append(listProcs, rs.LoginProcs...)
	listProcs = append(listProcs, rs.WorldProcs...)
	for _, proc := range listProcs {
		showMsg("\t%-10d%-16s%s", proc.Pid(), proc.Executable(), proc.Cmdline())
	}
}
