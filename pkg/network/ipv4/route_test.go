package ipv4_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
)

func TestLookupPrefersLongestPrefix(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	eth0 := loopdev.New("eth0", reg)
	eth1 := loopdev.New("eth1", reg)

	rt := ipv4.NewRoutingTable()
	rt.Add(ipv4.Route{Destination: addr.IPv4{10, 0, 0, 0}, Netmask: addr.CIDRMask(8), Interface: eth0, Type: ipv4.RouteDirect})
	rt.Add(ipv4.Route{Destination: addr.IPv4{10, 0, 1, 0}, Netmask: addr.CIDRMask(24), Interface: eth1, Type: ipv4.RouteDirect})

	r, err := rt.Lookup(addr.IPv4{10, 0, 1, 5})
	require.NoError(t, err)
	require.Same(t, eth1, r.Interface)
}

func TestLookupBreaksTiesByMetric(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	eth0 := loopdev.New("eth0", reg)
	eth1 := loopdev.New("eth1", reg)

	rt := ipv4.NewRoutingTable()
	rt.Add(ipv4.Route{Destination: addr.IPv4{10, 0, 0, 0}, Netmask: addr.CIDRMask(24), Interface: eth0, Metric: 10, Type: ipv4.RouteDirect})
	rt.Add(ipv4.Route{Destination: addr.IPv4{10, 0, 0, 0}, Netmask: addr.CIDRMask(24), Interface: eth1, Metric: 1, Type: ipv4.RouteDirect})

	r, err := rt.Lookup(addr.IPv4{10, 0, 0, 5})
	require.NoError(t, err)
	require.Same(t, eth1, r.Interface)
}

func TestLookupFallsBackToDefault(t *testing.T) {
	reg := device.NewRegistry(nil, nil)
	eth0 := loopdev.New("eth0", reg)

	rt := ipv4.NewRoutingTable()
	rt.Add(ipv4.Route{Type: ipv4.RouteDefault, Gateway: addr.IPv4{192, 168, 1, 1}, Interface: eth0})

	r, err := rt.Lookup(addr.IPv4{8, 8, 8, 8})
	require.NoError(t, err)
	require.Equal(t, ipv4.RouteDefault, r.Type)
	require.Equal(t, addr.IPv4{192, 168, 1, 1}, ipv4.NextHop(r, addr.IPv4{8, 8, 8, 8}))
}

func TestLookupNoRoute(t *testing.T) {
	rt := ipv4.NewRoutingTable()
	_, err := rt.Lookup(addr.IPv4{8, 8, 8, 8})
	require.ErrorIs(t, err, nerr.ErrNoRoute)
}

func TestNextHopDirectIsDestination(t *testing.T) {
	r := ipv4.Route{Type: ipv4.RouteDirect}
	dst := addr.IPv4{1, 2, 3, 4}
	require.Equal(t, dst, ipv4.NextHop(r, dst))
}

func TestDeleteRemovesExactMatch(t *testing.T) {
	rt := ipv4.NewRoutingTable()
	dest, mask, gw := addr.IPv4{10, 0, 0, 0}, addr.CIDRMask(8), addr.IPv4{}
	rt.Add(ipv4.Route{Destination: dest, Netmask: mask, Gateway: gw, Type: ipv4.RouteDirect})
	require.Len(t, rt.All(), 1)

	require.NoError(t, rt.Delete(dest, mask, gw))
	require.Empty(t, rt.All())

	require.ErrorIs(t, rt.Delete(dest, mask, gw), nerr.ErrInvalidArgument)
}
