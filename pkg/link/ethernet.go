// Package link implements Ethernet frame validation, addressing, and
// EtherType demultiplexing (spec §4.3). It is the single hand-off point
// between pkg/device's Registry and the per-EtherType handlers
// (typically pkg/network/ipv4).
package link

import (
	"encoding/binary"
	"sync"

	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/device"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// EtherType values spec §4.3 names.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeARP  uint16 = 0x0806
)

const (
	headerLen  = 14
	minFrame   = 60
	maxFrame   = 1518
	maxHandled = 16 // spec: "the table is small (<=16) and scanned linearly"
)

// Handler processes a frame's payload (header already stripped) that
// arrived with the given EtherType.
type Handler func(dev *device.Device, buf *netbuf.Netbuf)

type handlerEntry struct {
	etherType uint16
	fn        Handler
}

// Layer dispatches received frames to per-EtherType handlers and frames
// outgoing payloads before handing them to the device registry.
type Layer struct {
	mu       sync.RWMutex
	handlers []handlerEntry

	registry *device.Registry
	pool     *netbuf.Pool
	metrics  *metrics.Stack
	log      *zap.Logger
}

// New constructs a link Layer bound to registry. Register it as the
// registry's receive handler via registry.SetReceiveHandler(l.ReceiveFrame).
// pool is used to return buffers dropped by this layer to circulation.
func New(registry *device.Registry, pool *netbuf.Pool, m *metrics.Stack, log *zap.Logger) *Layer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Layer{registry: registry, pool: pool, metrics: m, log: log.Named("link")}
}

// RegisterHandler adds (or replaces) the handler for etherType. The
// handler table is linearly scanned (spec: at most 16 entries).
func (l *Layer) RegisterHandler(etherType uint16, fn Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, h := range l.handlers {
		if h.etherType == etherType {
			l.handlers[i].fn = fn
			return
		}
	}
	l.handlers = append(l.handlers, handlerEntry{etherType, fn})
}

func (l *Layer) lookup(etherType uint16) Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, h := range l.handlers {
		if h.etherType == etherType {
			return h.fn
		}
	}
	return nil
}

// ReceiveFrame implements spec §4.3's receive_frame steps 1-5. Loopback
// devices carry no Ethernet header (spec §3 distinguishes loopback as a
// device type with no physical framing); for those, buf.Proto is
// already the EtherType set by SendFrame and the frame is dispatched
// directly.
func (l *Layer) ReceiveFrame(dev *device.Device, buf *netbuf.Netbuf) {
	if dev.Type() == device.TypeLoopback {
		l.dispatch(dev, buf, buf.Proto)
		return
	}

	frameLen := buf.Len()
	if frameLen < minFrame || frameLen > maxFrame {
		l.log.Debug("dropping frame: bad length", zap.Int("len", frameLen))
		l.pool.Free(buf)
		return
	}

	hdr, err := buf.PullHeader(headerLen)
	if err != nil {
		l.log.Debug("dropping frame: header pull failed", zap.Error(err))
		l.pool.Free(buf)
		return
	}
	dst := addr.LinkAddrFromBytes(hdr[0:6])
	etherType := binary.BigEndian.Uint16(hdr[12:14])

	switch {
	case dst.IsBroadcast(), dst.IsMulticast():
		// always accepted
	case dst == dev.HWAddr():
		// unicast addressed to us
	default:
		if dev.Flags()&device.FlagPromisc == 0 {
			l.log.Debug("dropping frame: not for us", zap.Stringer("dst", dst))
			l.pool.Free(buf)
			return
		}
	}

	l.dispatch(dev, buf, etherType)
}

func (l *Layer) dispatch(dev *device.Device, buf *netbuf.Netbuf, etherType uint16) {
	h := l.lookup(etherType)
	if h == nil {
		l.log.Debug("dropping frame: no handler", zap.Uint16("ethertype", etherType))
		l.pool.Free(buf)
		return
	}
	h(dev, buf)
}

// SendFrame implements spec §4.3's send_frame: push the Ethernet
// header, pad to the minimum frame size, and hand off to the device
// registry's Transmit. Loopback devices skip framing entirely.
func (l *Layer) SendFrame(dev *device.Device, dst addr.LinkAddr, etherType uint16, buf *netbuf.Netbuf) error {
	if dev.Type() == device.TypeLoopback {
		buf.Proto = etherType
		return l.registry.Transmit(dev, buf)
	}

	hdr, err := buf.PushHeader(headerLen)
	if err != nil {
		return err
	}
	copy(hdr[0:6], dst[:])
	src := dev.HWAddr()
	copy(hdr[6:12], src[:])
	binary.BigEndian.PutUint16(hdr[12:14], etherType)

	if buf.Len() < minFrame {
		pad := minFrame - buf.Len()
		for i := 0; i < pad; i++ {
			if err := buf.Put(1); err != nil {
				return err
			}
			buf.Bytes()[len(buf.Bytes())-1] = 0
		}
	}

	return l.registry.Transmit(dev, buf)
}
