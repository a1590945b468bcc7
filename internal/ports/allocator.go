// Package ports finds free host ports for publishing container services.
package ports

import (
	"errors"
	"math/rand"
	"net"
	"strconv"
	"time"
)

// maxAttempts bounds the probe loop so a fully occupied range fails instead
// of spinning forever.
const maxAttempts = 100

// ErrNoPortAvailable is returned when no free port was found within
// maxAttempts probes.
var ErrNoPortAvailable = errors.New("ports: no available port found")

// ProbeFunc reports whether a host port is currently free to bind.
type ProbeFunc func(port int) bool

// Allocator picks a free host port, preferring the challenge's own service
// port and falling back to pseudo-random ports above it. The probe is a
// best-effort local bind check: the engine assigns the final port, so a race
// between probe and publish is possible and accepted.
type Allocator struct {
	probe ProbeFunc
	rng   *rand.Rand
}

// New returns an Allocator probing with a real TCP bind.
func New() *Allocator {
	return NewWithProbe(bindProbe, time.Now().UnixNano())
}

// NewWithProbe returns an Allocator with an injected probe and RNG seed.
// Deterministic seeds make allocation reproducible in tests.
func NewWithProbe(probe ProbeFunc, seed int64) *Allocator {
	return &Allocator{
		probe: probe,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Allocate returns a free host port in [preferred, 65535]. The preferred
// port is tried first; on conflict random ports in the range are probed, up
// to maxAttempts in total.
func (a *Allocator) Allocate(preferred int) (int, error) {
	candidate := preferred
	for range maxAttempts {
		if a.probe(candidate) {
			return candidate, nil
		}
		candidate = preferred + a.rng.Intn(65536-preferred)
	}
	return 0, ErrNoPortAvailable
}

// bindProbe checks availability by binding the port on all interfaces and
// releasing it immediately.
func bindProbe(port int) bool {
	l, err := net.Listen("tcp", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
