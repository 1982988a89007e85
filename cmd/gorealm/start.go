package main

import (
	"os/exec"
	"strconv"
	"time"

	"github.com/gorealm/gorealm/engine/config"
)

// the master must be listening before the other nodes register
const masterStartDelay = time.Second

func start() {
	rs := detectRealmStatus()
	if rs.IsRunning() {
		showRealmStatus(rs)
		showMsgAndQuit("realm is already running")
	}

	startComponent(componentMaster)
	time.Sleep(masterStartDelay)
	startComponent(componentLogin)
	for _, worldID := range config.GetWorldIDs() {
		startComponent(componentWorld, "-id", strconv.Itoa(int(worldID)))
	}
	showRealmStatus(detectRealmStatus())
}

func startComponent(component string, extraArgs ...string) {
	cmdArgs := []string{"-d"}
	if args.configFile != "" {
		cmdArgs = append(cmdArgs, "-configfile", args.configFile)
	}
	cmdArgs = append(cmdArgs, extraArgs...)

	showMsg("start %s %v ...", component, cmdArgs)
	cmd := exec.Command(binaryPath(component), cmdArgs...)
	cmd.Dir = args.binDir
	// the command returns once the daemon is forked
	checkErrorOrQuit(cmd.Run(), "start "+component+" failed")
}
