// Package systemd integrates the server with systemd socket activation and
// the sd_notify readiness protocol.
package systemd

import (
	"fmt"
	"net"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listener names expected in the socket unit's FileDescriptorName= directives.
const (
	ListenerAPI     = "api"
	ListenerMetrics = "metrics"
)

// Listeners holds the socket-activated listeners. Fields are nil for names
// the socket unit does not pass.
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners collects the named listeners passed by systemd. Without socket
// activation it returns an empty, non-activated set.
func GetListeners() (*Listeners, error) {
	if len(activation.Files(false)) == 0 {
		return &Listeners{}, nil
	}

	// Named listeners require systemd 227+
	named, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	return &Listeners{
		API:       first(named[ListenerAPI]),
		Metrics:   first(named[ListenerMetrics]),
		Activated: true,
	}, nil
}

func first(lns []net.Listener) net.Listener {
	if len(lns) == 0 {
		return nil
	}
	return lns[0]
}

// NotifyReady sends READY=1 to systemd.
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyStopping sends STOPPING=1 to systemd.
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// NotifyReloading sends RELOADING=1 to systemd. NotifyReady ends the reload.
func NotifyReloading() error {
	return notify(daemon.SdNotifyReloading)
}

// NotifyStatus sets the free-form status line shown by systemctl status.
func NotifyStatus(format string, args ...interface{}) error {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("sd_notify %s: %w", state, err)
	}
	return nil
}
