package ipv4

import (
	"sync"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

// RouteType classifies a route entry (spec §3).
type RouteType int

const (
	RouteDirect RouteType = iota
	RouteIndirect
	RouteDefault
)

// Route is one routing table entry (spec §3).
type Route struct {
	Destination addr.IPv4
	Netmask     addr.IPv4
	Gateway     addr.IPv4
	Interface   *device.Device
	Metric      int
	Type        RouteType
}

func (r Route) prefixLen() int {
	n := 0
	m := r.Netmask.Uint32()
	for m != 0 {
		n += int(m & 1)
		m >>= 1
	}
	return n
}

func (r Route) covers(dst addr.IPv4) bool {
	if r.Type == RouteDefault {
		return true
	}
	return dst.SameSubnet(r.Destination, r.Netmask)
}

// RoutingTable is an ordered list of routes, protected by its own lock
// (spec §5: "each protected by its own lock").
type RoutingTable struct {
	mu     sync.RWMutex
	routes []Route
}

// NewRoutingTable returns an empty table.
func NewRoutingTable() *RoutingTable { return &RoutingTable{} }

// Add appends route to the table.
func (t *RoutingTable) Add(r Route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
}

// Delete removes the first route matching destination/netmask/gateway
// exactly.
func (t *RoutingTable) Delete(destination, netmask, gateway addr.IPv4) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.routes {
		if r.Destination == destination && r.Netmask == netmask && r.Gateway == gateway {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return nil
		}
	}
	return nerr.ErrInvalidArgument
}

// All returns a snapshot of the routing table.
func (t *RoutingTable) All() []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Lookup implements spec §4.4's route_output: the most-specific
// matching prefix wins, ties broken by lowest metric, and a default
// route is used only when no prefix route matches.
func (t *RoutingTable) Lookup(dst addr.IPv4) (Route, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Route
	var def *Route
	for i := range t.routes {
		r := &t.routes[i]
		if r.Type == RouteDefault {
			if def == nil || r.Metric < def.Metric {
				def = r
			}
			continue
		}
		if !r.covers(dst) {
			continue
		}
		if best == nil ||
			r.prefixLen() > best.prefixLen() ||
			(r.prefixLen() == best.prefixLen() && r.Metric < best.Metric) {
			best = r
		}
	}
	if best != nil {
		return *best, nil
	}
	if def != nil {
		return *def, nil
	}
	return Route{}, nerr.ErrNoRoute
}

// NextHop resolves the next-hop IPv4 address for dst given route r: the
// destination itself for a direct route, the gateway for an indirect
// or default route.
func NextHop(r Route, dst addr.IPv4) addr.IPv4 {
	if r.Type == RouteDirect {
		return dst
	}
	return r.Gateway
}
