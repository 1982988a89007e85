package main

import (
	"time"

	"github.com/gorealm/gorealm/cmd/gorealm/process"
)

func stop() {
	rs := detectRealmStatus()
	showRealmStatus(rs)
	if !rs.IsRunning() {
		showMsgAndQuit("no realm is running currently")
	}

	// worlds and login go first so they do not reconnect to a master that is shutting down
	stopProcs(componentWorld, rs.WorldProcs)
	stopProcs(componentLogin, rs.LoginProcs)
	stopProcs(componentMaster, rs.MasterProcs)
}

func stopProcs(component string, procs []process.Process) {
	if len(procs) == 0 {
		return
	}
	showMsg("stop %d %s ...", len(procs), component)
	for _, proc := range procs {
		showMsg("stop process %s pid=%d", proc.Executable(), proc.Pid())
		checkErrorOrQuit(proc.Terminate(), "stop process failed")
	}
	for _, proc := range procs {
		for proc.IsRunning() {
			time.Sleep(time.Millisecond * 100)
		}
	}
}
