//go:build windows
// +build windows

package binutil

import "github.com/gorealm/gorealm/engine/gwlog"

type nopRelease int

func (nopRelease) Release() error {
	return nil
}

// Daemonize is not supported on windows
func Daemonize() nopRelease {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
