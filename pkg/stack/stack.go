// Package stack wires every layer into one running instance: the
// netbuf pool, device registry, link layer, IPv4 routing/fragmentation,
// UDP, TCP, the BSD socket table, and the DNS resolver (spec §9:
// "Treat each as a named long-lived resource with explicit init/
// teardown; permit dependency injection for tests").
package stack

import (
	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/config"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/dns"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/socket"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/tcp"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

// Stack bundles every long-lived layer behind one handle, matching the
// lifecycle spec §9 names for the source's process-wide singletons.
type Stack struct {
	Config config.Stack

	Pool      *netbuf.Pool
	Devices   *device.Registry
	Link      *link.Layer
	Routes    *ipv4.RoutingTable
	Neighbors *ipv4.StaticNeighbors
	Wheel     *timerwheel.Wheel
	Metrics   *metrics.Stack

	IP      *ipv4.Layer
	UDP     *udp.Layer
	TCP     *tcp.Layer
	Sockets *socket.Table
	DNS     *dns.Resolver

	log *zap.Logger
}

// New builds and starts a Stack from cfg: it brings up every
// interface cfg names (a loopback device for the interface named "lo",
// a TAP device opened with tapdev.Open otherwise), installs a
// directly-connected route per interface, starts the timer wheel, and
// constructs the protocol layers on top. DNS resolution is wired
// against the first interface's address when cfg names at least one
// DNS server; otherwise DNS is left nil.
func New(cfg config.Stack, log *zap.Logger) (*Stack, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := metrics.New()

	pool := netbuf.NewPool(netbuf.DefaultCount, netbuf.DefaultCapacity)
	registry := device.NewRegistry(log, m)
	linkLayer := link.New(registry, pool, m, log)
	registry.SetReceiveHandler(linkLayer.ReceiveFrame)

	routes := ipv4.NewRoutingTable()
	neighbors := ipv4.NewStaticNeighbors()

	var primaryAddr addr.IPv4
	for i, ifc := range cfg.Interfaces {
		dev, ip, netmask, gateway, err := bringUpInterface(registry, pool, ifc)
		if err != nil {
			return nil, err
		}
		routes.Add(ipv4.Route{Destination: ip.Mask(netmask), Netmask: netmask, Interface: dev, Type: ipv4.RouteDirect})
		neighbors.Set(ip, dev.HWAddr())
		if !gateway.IsUnspecified() {
			routes.Add(ipv4.Route{Gateway: gateway, Interface: dev, Type: ipv4.RouteDefault})
		}
		if i == 0 {
			primaryAddr = ip
		}
	}

	wheel := timerwheel.New(timerwheel.MinGranularity, log)
	wheel.Start()

	ipLayer := ipv4.New(linkLayer, routes, wheel, neighbors, pool, m, log)
	udpLayer := udp.New(ipLayer, cfg.EphemeralPortLow, cfg.EphemeralPortHigh, m, log)
	tcpLayer := tcp.New(ipLayer, wheel, cfg.EphemeralPortLow, cfg.EphemeralPortHigh, m, log)
	sockets := socket.New(udpLayer, tcpLayer)

	s := &Stack{
		Config:    cfg,
		Pool:      pool,
		Devices:   registry,
		Link:      linkLayer,
		Routes:    routes,
		Neighbors: neighbors,
		Wheel:     wheel,
		Metrics:   m,
		IP:        ipLayer,
		UDP:       udpLayer,
		TCP:       tcpLayer,
		Sockets:   sockets,
		log:       log,
	}

	if len(cfg.DNSServers) > 0 {
		resolver, err := dns.New(primaryAddr, udpLayer, wheel, cfg, m, log)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DNS = resolver
	}
	return s, nil
}

// Close stops the timer wheel, releasing every armed timer. Devices
// are left as-is: a tapdev's OS file descriptor is closed by its own
// process-exit cleanup, matching the teacher's driver lifecycle.
func (s *Stack) Close() {
	s.Wheel.Stop()
}
