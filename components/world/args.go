package world

import "flag"

var args struct {
	worldID         int
	configFile      string
	logLevel        string
	runInDaemonMode bool
}

func parseArgs() {
	flag.IntVar(&args.worldID, "id", 0, "set world id")
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.Parse()
}
