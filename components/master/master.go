package master

import (
	"fmt"

	"github.com/gorealm/gorealm/engine/auth"
	"github.com/gorealm/gorealm/engine/binutil"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/opmon"
	"github.com/xiaonanln/goTimer"
)

// Start runs the master until it is terminated by a signal
func Start() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.GetMaster()
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	binutil.SetupGWLog("master", logLevel, cfg.LogFile, cfg.LogStderr)
	gwlog.Infof("Read master config: \n%s\n", config.DumpPretty(cfg))

	verifier := auth.NewRedisVerifier(config.GetAuth())
	if err := verifier.Ping(); err != nil {
		gwlog.Fatalf("master: credential store not available: %v", err)
	}

	ms := newMasterService(verifier)
	binutil.SetupSignals("master", ms.terminate, ms.terminated)
	binutil.SetupHTTPServer(cfg.HTTPIp, cfg.HTTPPort, nil)

	if consts.OPMON_DUMP_INTERVAL > 0 {
		timer.AddTimer(consts.OPMON_DUMP_INTERVAL, func() {
			gwlog.Infof("%s", opmon.Dump())
		})
	}

	listener := endpoint.NewListener("master", ms.queue)
	go netutil.ServeTCPForever(fmt.Sprintf("%s:%d", cfg.BindIp, cfg.Port), listener)

	netutil.ServeForever(ms.serveRoutine)
}
