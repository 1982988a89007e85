package binutil

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/gorealm/gorealm/engine/post"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"golang.org/x/net/websocket"
)

// SetupHTTPServer starts the HTTP server for go tool pprof and websockets
func SetupHTTPServer(ip string, port int, wsHandler func(ws *websocket.Conn)) {
	if port == 0 {
		// pprof not enabled
		gwlog.Infof("pprof server not enabled")
		return
	}

	httpHost := fmt.Sprintf("%s:%d", ip, port)
	gwlog.Infof("http server listening on %s", httpHost)
	gwlog.Infof("pprof http://%s/debug/pprof/ ... available commands: ", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/heap", httpHost)
	gwlog.Infof("    go tool pprof http://%s/debug/pprof/profile", httpHost)

	if wsHandler != nil {
		http.Handle("/ws", websocket.Handler(wsHandler))
	}

	go func() {
		if err := http.ListenAndServe(httpHost, nil); err != nil {
			gwlog.Errorf("http server on %s quited: %v", httpHost, err)
		}
	}()
}

// SetupGWLog setup the log system of a component: level name, rotated log file and stderr
func SetupGWLog(component string, logLevel string, logFile string, logStderr bool) {
	gwlog.SetSource(component)
	gwlog.Infof("Set log level to %s", logLevel)
	gwlog.SetLevel(gwlog.ParseLevel(logLevel))

	outputs := make([]string, 0, 2)
	if logFile != "" {
		outputs = append(outputs, logFile)
	}
	if logStderr || len(outputs) == 0 {
		outputs = append(outputs, "stderr")
	}
	gwlog.SetOutput(outputs)
}

// SetupSignals posts terminate to the main routine on SIGINT/SIGTERM and exits once terminated is signaled
func SetupSignals(component string, terminate func(), terminated *xnsyncutil.OneTimeCond) {
	gwlog.Infof("Setup signals ...")
	signalChan := make(chan os.Signal, 1)
	signal.Ignore(syscall.Signal(10), syscall.Signal(12), syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGTERM || sig == syscall.SIGINT {
				gwlog.Infof("Terminating %s ...", component)
				post.Post(terminate)
				terminated.Wait()
				gwlog.Infof("%s terminated gracefully.", component)
				gwlog.Sync()
				os.Exit(0)
			} else {
				gwlog.Errorf("unexpected signal: %s", sig)
			}
		}
	}()
}
