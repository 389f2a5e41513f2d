package fetch

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/baronrustamov/bloomsync/internal/filter/common/utils"
)

// ErrNoUsablePath is returned when the network path is unusable under the
// policy and the policy does not wait for connectivity.
var ErrNoUsablePath = errors.New("no usable network path")

// NetworkPolicy controls which network paths filter downloads may use.
// Filter files can be large: by default they avoid metered ("expensive") and
// low-data ("constrained") paths and wait for a usable path instead of
// failing while offline.
type NetworkPolicy struct {
	AllowExpensive      bool
	AllowConstrained    bool
	WaitForConnectivity bool
}

// DefaultPolicy is the bandwidth-conserving policy used for filter syncs.
var DefaultPolicy = NetworkPolicy{WaitForConnectivity: true}

// PathStatus describes the network path to a host.
type PathStatus struct {
	Satisfied   bool
	Expensive   bool
	Constrained bool
}

// usable reports whether a request may be sent over a path with status s.
func (p NetworkPolicy) usable(s PathStatus) bool {
	if !s.Satisfied {
		return false
	}
	if s.Expensive && !p.AllowExpensive {
		return false
	}
	if s.Constrained && !p.AllowConstrained {
		return false
	}
	return true
}

// PathMonitor reports the current path status towards a URL's host.
type PathMonitor interface {
	Status(ctx context.Context, rawURL string) PathStatus
}

// DialFunc matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// dialMonitor treats a host as reachable when a TCP connection to it succeeds.
// It cannot observe metering, so paths are never reported expensive or constrained.
type dialMonitor struct {
	dial    DialFunc
	timeout time.Duration
}

// NewDialMonitor returns a PathMonitor probing reachability by dialing.
// A nil dial uses net.Dialer; timeout <= 0 defaults to 5 seconds.
func NewDialMonitor(dial DialFunc, timeout time.Duration) PathMonitor {
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &dialMonitor{dial: dial, timeout: timeout}
}

func (m *dialMonitor) Status(ctx context.Context, rawURL string) PathStatus {
	addr, err := utils.HostPort(rawURL)
	if err != nil {
		return PathStatus{}
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	conn, err := m.dial(ctx, "tcp", addr)
	if err != nil {
		return PathStatus{}
	}
	_ = conn.Close()
	return PathStatus{Satisfied: true}
}
