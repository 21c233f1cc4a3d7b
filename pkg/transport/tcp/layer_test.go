package tcp_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/tcp"
)

func buildLoopbackTCP(t *testing.T) (*tcp.Layer, addr.IPv4) {
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
	tcpLayer := tcp.New(ipLayer, wheel, 49152, 65535, nil, nil)
	return tcpLayer, loAddr
}

func TestTCPHandshakeAndDataTransfer(t *testing.T) {
	tcpLayer, loAddr := buildLoopbackTCP(t)

	listener, err := tcpLayer.Listen(loAddr, 9100, 4)
	require.NoError(t, err)

	acceptCh := make(chan *tcp.Socket, 1)
	go func() {
		conn, err := tcpLayer.Accept(listener)
		require.NoError(t, err)
		acceptCh <- conn
	}()

	client, err := tcpLayer.Dial(loAddr, loAddr, 9100)
	require.NoError(t, err)
	require.Equal(t, tcp.StateEstablished, client.State())

	var server *tcp.Socket
	select {
	case server = <-acceptCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
	require.Equal(t, tcp.StateEstablished, server.State())

	_, err = client.Write([]byte("hello server"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello server", string(buf[:n]))

	_, err = server.Write([]byte("hello client"))
	require.NoError(t, err)
	n, err = client.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello client", string(buf[:n]))
}

func TestTCPGracefulClose(t *testing.T) {
	tcpLayer, loAddr := buildLoopbackTCP(t)

	listener, err := tcpLayer.Listen(loAddr, 9101, 4)
	require.NoError(t, err)

	acceptCh := make(chan *tcp.Socket, 1)
	go func() {
		conn, err := tcpLayer.Accept(listener)
		require.NoError(t, err)
		acceptCh <- conn
	}()

	client, err := tcpLayer.Dial(loAddr, loAddr, 9101)
	require.NoError(t, err)

	var server *tcp.Socket
	select {
	case server = <-acceptCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}

	require.NoError(t, client.Close())

	readDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		_, err := server.Read(buf)
		readDone <- err
	}()
	select {
	case err := <-readDone:
		require.Error(t, err) // io.EOF: peer's FIN fully received
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for peer close")
	}
	require.Eventually(t, func() bool {
		return server.State() == tcp.StateCloseWait
	}, time.Second, time.Millisecond)

	require.NoError(t, server.Close())
	require.Eventually(t, func() bool {
		st := client.State()
		return st == tcp.StateTimeWait || st == tcp.StateClosed
	}, time.Second, time.Millisecond)
}

func TestTCPDialConnectionRefused(t *testing.T) {
	tcpLayer, loAddr := buildLoopbackTCP(t)
	_, err := tcpLayer.Dial(loAddr, loAddr, 9999)
	require.Error(t, err)
}
