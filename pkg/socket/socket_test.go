package socket_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/device/loopdev"
	"github.com/Ikey168/IKOS-sub006/pkg/link"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
	"github.com/Ikey168/IKOS-sub006/pkg/network/ipv4"
	"github.com/Ikey168/IKOS-sub006/pkg/socket"
	"github.com/Ikey168/IKOS-sub006/pkg/timerwheel"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/tcp"
	"github.com/Ikey168/IKOS-sub006/pkg/transport/udp"
)

func buildLoopbackTable(t *testing.T) (*socket.Table, addr.IPv4) {
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
	tcpLayer := tcp.New(ipLayer, wheel, 49152, 65535, nil, nil)

	return socket.New(udpLayer, tcpLayer), loAddr
}

func TestSocketUDPSendRecvLoopback(t *testing.T) {
	table, loAddr := buildLoopbackTable(t)

	serverFD, err := table.Socket(socket.TypeDgram)
	require.NoError(t, err)
	require.NoError(t, table.Bind(serverFD, loAddr, 9200))

	clientFD, err := table.Socket(socket.TypeDgram)
	require.NoError(t, err)
	require.NoError(t, table.Bind(clientFD, loAddr, 0))
	require.NoError(t, table.Connect(clientFD, loAddr, 9200))

	n, err := table.Send(clientFD, []byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 32)
	n, srcAddr, srcPort, err := table.RecvFrom(serverFD, buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))
	require.Equal(t, loAddr, srcAddr)
	require.NotZero(t, srcPort)
}

func TestSocketUDPRecvWouldBlockNonBlocking(t *testing.T) {
	table, loAddr := buildLoopbackTable(t)

	fd, err := table.Socket(socket.TypeDgram)
	require.NoError(t, err)
	require.NoError(t, table.Bind(fd, loAddr, 9201))
	require.NoError(t, table.SetNonBlocking(fd, true))

	buf := make([]byte, 16)
	_, err = table.Recv(fd, buf)
	require.ErrorIs(t, err, nerr.ErrWouldBlock)
}

func TestSocketTCPAcceptConnectDataTransfer(t *testing.T) {
	table, loAddr := buildLoopbackTable(t)

	listenFD, err := table.Socket(socket.TypeStream)
	require.NoError(t, err)
	require.NoError(t, table.Bind(listenFD, loAddr, 9202))
	require.NoError(t, table.Listen(listenFD, 4))

	acceptCh := make(chan int, 1)
	acceptErrCh := make(chan error, 1)
	go func() {
		connFD, err := table.Accept(listenFD)
		if err != nil {
			acceptErrCh <- err
			return
		}
		acceptCh <- connFD
	}()

	clientFD, err := table.Socket(socket.TypeStream)
	require.NoError(t, err)
	require.NoError(t, table.Connect(clientFD, loAddr, 9202))

	var serverFD int
	select {
	case serverFD = <-acceptCh:
	case err := <-acceptErrCh:
		t.Fatalf("accept failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}

	_, err = table.Send(clientFD, []byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 32)
	n, err := table.Recv(serverFD, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))

	require.NoError(t, table.Close(clientFD))
	require.NoError(t, table.Close(serverFD))
}

func TestSocketAcceptOnUnboundStreamFails(t *testing.T) {
	table, _ := buildLoopbackTable(t)

	fd, err := table.Socket(socket.TypeStream)
	require.NoError(t, err)

	_, err = table.Accept(fd)
	require.Error(t, err)
}

func TestSocketLookupUnknownFD(t *testing.T) {
	table, _ := buildLoopbackTable(t)
	_, err := table.Recv(999, make([]byte, 8))
	require.ErrorIs(t, err, nerr.ErrNoSocket)
}
