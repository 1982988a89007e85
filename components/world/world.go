package world

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gorealm/gorealm/engine/binutil"
	"github.com/gorealm/gorealm/engine/common"
	"github.com/gorealm/gorealm/engine/config"
	"github.com/gorealm/gorealm/engine/consts"
	"github.com/gorealm/gorealm/engine/endpoint"
	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/lbc"
	"github.com/gorealm/gorealm/engine/netutil"
	"github.com/gorealm/gorealm/engine/opmon"
	rworld "github.com/gorealm/gorealm/engine/world"
	"github.com/xiaonanln/goTimer"
)

// Start runs a world node until it is terminated by a signal
func Start() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize()
		defer daemoncontext.Release()
	}
	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	if args.worldID <= 0 || args.worldID >= common.AnyIndex {
		gwlog.Fatalf("world id %d is not valid, should be in [1, %d)", args.worldID, common.AnyIndex)
	}
	index := uint8(args.worldID)

	cfg := config.GetWorld(index)
	if cfg == nil {
		gwlog.Fatalf("world %d is not configured", index)
	}
	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = cfg.LogLevel
	}
	binutil.SetupGWLog(fmt.Sprintf("world%d", index), logLevel, cfg.LogFile, cfg.LogStderr)
	gwlog.Infof("Read world %d config: \n%s\n", index, config.DumpPretty(cfg))

	dataFile := cfg.WorldDataFile
	if !filepath.IsAbs(dataFile) {
		dataFile = filepath.Join(config.GetConfigDir(), dataFile)
	}
	table, err := rworld.LoadWorldData(dataFile)
	if err != nil {
		gwlog.Fatalf("world %d: load world data failed: %v", index, err)
	}
	gwlog.Infof("world %d: %d worlds loaded from %s", index, table.Count(), dataFile)

	ws := newWorldService(index, cfg, table, time.Now)
	binutil.SetupSignals(ws.String(), ws.terminate, ws.terminated)

	timer.AddTimer(consts.SYNC_TICK_INTERVAL, func() {
		ws.sync.Tick()
	})
	timer.AddTimer(consts.SESSION_SWEEP_INTERVAL, ws.tick)
	if consts.OPMON_DUMP_INTERVAL > 0 {
		timer.AddTimer(consts.OPMON_DUMP_INTERVAL, func() {
			gwlog.Infof("%s", opmon.Dump())
		})
	}
	lbc.Initialize(context.Background(), cfg.LoadReportInterval, ws.reportLoad)

	listener := endpoint.NewListener(ws.String(), ws.queue)
	go netutil.ServeTCPForever(fmt.Sprintf("%s:%d", cfg.Ip, cfg.Port), listener)
	if cfg.KCPPort != 0 {
		go netutil.ServeKCPForever(fmt.Sprintf("%s:%d", cfg.Ip, cfg.KCPPort), listener.ReadBufferSize, listener.WriteBufferSize, listener)
	}
	binutil.SetupHTTPServer(cfg.HTTPIp, cfg.HTTPPort, listener.ServeWebSocket)

	master := config.GetMaster()
	uplink := &endpoint.Uplink{
		Self:            common.WorldAddress(index),
		MasterHost:      master.Ip,
		MasterPort:      master.Port,
		AdvertiseHost:   cfg.Ip,
		AdvertisePort:   cfg.Port,
		Handshake:       listener.Handshake,
		ReadBufferSize:  listener.ReadBufferSize,
		WriteBufferSize: listener.WriteBufferSize,
		Queue:           ws.queue,
	}
	go uplink.Run(context.Background())

	netutil.ServeForever(ws.serveRoutine)
}
