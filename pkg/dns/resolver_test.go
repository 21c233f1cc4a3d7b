package dns_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/config"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/dns"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

func buildLoopbackUDPForDNS(t *testing.T) (*udp.Layer, *timerwheel.Wheel, addr.IPv4) {
	t.Helper()
	pool := netbuf.NewPool(256, netbuf.DefaultCapacity)
	reg := device.NewRegistry(nil, nil)
	lo := loopdev.New("lo", reg)
	require.NoError(t, reg.Register(lo))
	require.NoError(t, reg.Up(lo))

	loAddr := addr.IPv4{127, 0, 0, 1}
	lo.Configure(loAddr, addr.CIDRMask(8), addr.IPv4{})

	linkLayer := link.New(reg, pool, nil, nil)
	reg.SetReceiveHandler(linkLayer.ReceiveFrame)

	routes := ipv4.NewRoutingTable()
	routes.Add(ipv4.Route{Destination: loAddr, Netmask: addr.CIDRMask(8), Interface: lo, Type: ipv4.RouteDirect})

	wheel := timerwheel.New(time.Millisecond, nil)
	wheel.Start()
	t.Cleanup(wheel.Stop)

	neighbors := ipv4.NewStaticNeighbors()
	neighbors.Set(loAddr, addr.LinkAddr{})

	ipLayer := ipv4.New(linkLayer, routes, wheel, neighbors, pool, nil, nil)
	udpLayer := udp.New(ipLayer, 49152, 65535, nil, nil)
	return udpLayer, wheel, loAddr
}

// fakeUpstream answers every A query for "example.com" with a fixed
// address and ignores everything else, standing in for a real
// recursive DNS server in these loopback tests.
func fakeUpstream(t *testing.T, udpLayer *udp.Layer, loAddr addr.IPv4) {
	t.Helper()
	sock := udpLayer.NewSocket()
	require.NoError(t, udpLayer.Bind(sock, loAddr, 53))

	go func() {
		for {
			dg := sock.Recv()
			msg, err := dns.ParseMessage(dg.Payload)
			if err != nil || len(msg.Questions) == 0 {
				continue
			}
			q := msg.Questions[0]

			resp := append([]byte{}, dg.Payload[:12]...)
			resp[2] |= 0x80 // QR=1
			resp[7] = 1     // ancount=1
			nameBytes, _ := dns.EncodeName(q.Name)
			resp = append(resp, nameBytes...)
			resp = append(resp, 0, byte(q.Type), 0, byte(q.Class))

			resp = append(resp, 0xC0, 0x0C) // answer name: pointer to question
			resp = append(resp, 0, byte(dns.TypeA), 0, byte(dns.ClassIN))
			resp = append(resp, 0, 0, 0x01, 0x2C) // ttl 300
			resp = append(resp, 0, 4)
			resp = append(resp, 93, 184, 216, 34)

			_, _ = sock.SendTo(resp, dg.SrcAddr, dg.SrcPort)
		}
	}()
}

func TestResolverGetHostByNameCachesResult(t *testing.T) {
	udpLayer, wheel, loAddr := buildLoopbackUDPForDNS(t)
	fakeUpstream(t, udpLayer, loAddr)

	cfg := config.Defaults()
	cfg.DNSServers = []string{loAddr.String()}

	resolver, err := dns.New(loAddr, udpLayer, wheel, cfg, nil, nil)
	require.NoError(t, err)

	ip, err := resolver.GetHostByName("example.com")
	require.NoError(t, err)
	require.Equal(t, addr.IPv4{93, 184, 216, 34}, ip)
	require.Equal(t, 1, resolver.CacheLen())

	// Second lookup must be served from cache (no new network I/O
	// needed to succeed; fakeUpstream would still answer, but the
	// cache should short-circuit before a query is ever sent).
	ip2, err := resolver.GetHostByName("example.com")
	require.NoError(t, err)
	require.Equal(t, ip, ip2)
}

func TestResolverTimesOutWithNoServer(t *testing.T) {
	udpLayer, wheel, loAddr := buildLoopbackUDPForDNS(t)

	cfg := config.Defaults()
	cfg.DNSTimeout = 20 * time.Millisecond
	cfg.DNSRetries = 1
	cfg.DNSServers = []string{addr.IPv4{127, 0, 0, 1}.String()} // port 53 unbound: queries vanish

	resolver, err := dns.New(loAddr, udpLayer, wheel, cfg, nil, nil)
	require.NoError(t, err)

	_, err = resolver.GetHostByName("example.com")
	require.Error(t, err)
}
