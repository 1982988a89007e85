package login

import (
	"context"
	"fmt"
	"time"

	"github.com/gorealm/gorealm/engine/binutil"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/opmon"
	"github.com/xiaonanln/goTimer"
)

// Start runs the login server until it is terminated by a signal
func Start() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}

	cfg := config.GetLogin()
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	binutil.SetupGWLog("login", logLevel, cfg.LogFile, cfg.LogStderr)
	gwlog.Infof("Read login config: \n%s\n", config.DumpPretty(cfg))

	ls := newLoginService(cfg, time.Now)
	binutil.SetupSignals("login", ls.terminate, ls.terminated)
	binutil.SetupHTTPServer(cfg.HTTPIp, cfg.HTTPPort, nil)

	timer.AddTimer(cfg.WorldListBroadcastInterval, ls.requestWorldList)
	timer.AddTimer(consts.SESSION_SWEEP_INTERVAL, func() {
		ls.sessions.Tick()
	})
	if consts.OPMON_DUMP_INTERVAL > 0 {
		timer.AddTimer(consts.OPMON_DUMP_INTERVAL, func() {
			gwlog.Infof("%s", opmon.Dump())
		})
	}

	listener := endpoint.NewListener("login", ls.queue)
	go netutil.ServeTCPForever(fmt.Sprintf("%s:%d", cfg.Ip, cfg.Port), listener)
	if cfg.KCPPort != 0 {
		go netutil.ServeKCPForever(fmt.Sprintf("%s:%d", cfg.Ip, cfg.KCPPort), listener.ReadBufferSize, listener.WriteBufferSize, listener)
	}

	master := config.GetMaster()
	uplink := &endpoint.Uplink{
		Self:            common.LoginAddress,
		MasterHost:      master.Ip,
		MasterPort:      master.Port,
		AdvertiseHost:   cfg.Ip,
		AdvertisePort:   cfg.Port,
		Handshake:       listener.Handshake,
		ReadBufferSize:  listener.ReadBufferSize,
		WriteBufferSize: listener.WriteBufferSize,
		Queue:           ls.queue,
	}
	go uplink.Run(context.Background())

	netutil.ServeForever(ls.serveRoutine)
}
