//go:build !windows
// +build !windows

package binutil

import (
	"os"

	"github.com/gorealm/gorealm/engine/gwlog"
	"github.com/sevlyar/go-daemon"
)

// Daemonize re-runs the process in background. The parent exits, the child gets the context to release on exit.
func Daemonize() *daemon.Context {
	context := new(daemon.Context)
	child, err := context.Reborn()
	if err != nil {
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode")
		os.Exit(0)
		return nil
	}
	return context
}
