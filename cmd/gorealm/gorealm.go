// gorealm starts, stops and inspects the master, login and world processes of a realm.
//
// The binaries are expected in one directory (-bindir) under their component names: master, login and world.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorealm/gorealm/engine/config"
)

var args struct {
	binDir     string
	configFile string
}

func parseArgs() {
	flag.StringVar(&args.binDir, "bindir", ".", "directory of the master, login and world binaries")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.Parse()

	binDir, err := filepath.Abs(args.binDir)
	checkErrorOrQuit(err, "resolve bin directory failed")
	args.binDir = binDir
	if args.configFile != "" {
		configFile, err := filepath.Abs(args.configFile)
		checkErrorOrQuit(err, "resolve config file failed")
		args.configFile = configFile
		config.SetConfigFile(configFile)
	}
}

func main() {
	parseArgs()
	cmdArgs := flag.Args()
	showMsg("arguments: %s", strings.Join(cmdArgs, " "))
	if len(cmdArgs) != 1 {
		showMsg("should specify one command: start, stop or status")
		flag.Usage()
		os.Exit(1)
	}

	switch cmdArgs[0] {
	case "start":
		start()
	case "stop":
		stop()
	case "status":
		status()
	default:
		showMsgAndQuit("unknown command: %s", cmdArgs[0])
	}
}
