package remote

import (
	"context"
	"slices"
	"time"

	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v4/net"
)

// NetworkObserver reports connectivity changes. The callback may be invoked
// from any goroutine. The service subscribes only while at least one client
// is registered.
type NetworkObserver interface {
	Subscribe(fn func(available bool)) (unsubscribe func())
}

// DefaultNetworkPollInterval is how often InterfaceObserver samples interfaces.
const DefaultNetworkPollInterval = 5 * time.Second

// InterfaceObserver polls the host's network interfaces and reports whether
// any non-loopback interface is up with an address. The current availability
// is reported right after subscribing, then on every change.
type InterfaceObserver struct {
	Interval time.Duration
	Logger   zerolog.Logger

	interfaces func(ctx context.Context) (psnet.InterfaceStatList, error)
}

// NewInterfaceObserver creates an observer polling at interval.
func NewInterfaceObserver(interval time.Duration, logger zerolog.Logger) *InterfaceObserver {
	if interval <= 0 {
		interval = DefaultNetworkPollInterval
	}
	return &InterfaceObserver{
		Interval:   interval,
		Logger:     logger.With().Str("component", "network").Logger(),
		interfaces: psnet.InterfacesWithContext,
	}
}

// Subscribe starts polling for fn. The returned function stops polling
// without waiting; a poll already in flight may still report once.
func (o *InterfaceObserver) Subscribe(fn func(available bool)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go o.poll(ctx, fn)
	return cancel
}

func (o *InterfaceObserver) poll(ctx context.Context, fn func(bool)) {
	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	last, known := false, false
	for {
		available, err := o.available(ctx)
		if err != nil {
			o.Logger.Debug().Err(err).Msg("interface poll failed")
		} else if !known || available != last {
			last, known = available, true
			o.Logger.Debug().Bool("available", available).Msg("connectivity changed")
			fn(available)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *InterfaceObserver) available(ctx context.Context) (bool, error) {
	list, err := o.interfaces(ctx)
	if err != nil {
		return false, err
	}
	return hasUsableInterface(list), nil
}

func hasUsableInterface(list psnet.InterfaceStatList) bool {
	for _, iface := range list {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if len(iface.Addrs) > 0 {
			return true
		}
	}
	return false
}
