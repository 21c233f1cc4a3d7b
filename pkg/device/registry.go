package device

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Ikey168/IKOS-sub006/pkg/addr"
	"github.com/Ikey168/IKOS-sub006/pkg/metrics"
	"github.com/Ikey168/IKOS-sub006/pkg/nerr"
	"github.com/Ikey168/IKOS-sub006/pkg/netbuf"
)

// ReceiveHandler is invoked by Registry.Receive once a frame has been
// accounted for and tagged with its originating device; it is the
// registry's single hand-off point to the link layer (spec §4.2
// "receive(dev, buf) ... hands it to the link layer based on device
// type").
type ReceiveHandler func(dev *Device, buf *netbuf.Netbuf)

// Registry enumerates network devices and routes frames to/from
// drivers (spec §4.2). One Registry is process-wide per stack.Stack
// (spec §9 "Global mutable state ... permit dependency injection for
// tests").
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Device
	byIndex map[int]*Device
	nextIdx int

	onReceive ReceiveHandler

	log     *zap.Logger
	metrics *metrics.Stack
}

// NewRegistry constructs an empty registry.
func NewRegistry(log *zap.Logger, m *metrics.Stack) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byName:  make(map[string]*Device),
		byIndex: make(map[int]*Device),
		log:     log.Named("device"),
		metrics: m,
	}
}

// SetReceiveHandler installs the link-layer callback. Must be called
// before any device starts receiving frames.
func (r *Registry) SetReceiveHandler(h ReceiveHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReceive = h
}

// Register adds dev to the registry, rejecting a duplicate name (spec
// §4.2).
func (r *Registry) Register(dev *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[dev.name]; exists {
		return errors.Wrapf(nerr.ErrDuplicateName, "device %q", dev.name)
	}
	dev.index = r.nextIdx
	r.nextIdx++
	r.byName[dev.name] = dev
	r.byIndex[dev.index] = dev
	r.log.Info("device registered", zap.String("name", dev.name), zap.Int("index", dev.index))
	return nil
}

// Unregister removes dev from the registry. The device must already be
// down; Unregister does not force it down.
func (r *Registry) Unregister(dev *Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[dev.name]; !exists {
		return nerr.ErrNoSuchDevice
	}
	delete(r.byName, dev.name)
	delete(r.byIndex, dev.index)
	r.log.Info("device unregistered", zap.String("name", dev.name))
	return nil
}

// LookupByName finds a registered device by name.
func (r *Registry) LookupByName(name string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.byName[name]
	if !ok {
		return nil, nerr.ErrNoSuchDevice
	}
	return dev, nil
}

// LookupByIndex finds a registered device by its registry-assigned
// index.
func (r *Registry) LookupByIndex(index int) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev, ok := r.byIndex[index]
	if !ok {
		return nil, nerr.ErrNoSuchDevice
	}
	return dev, nil
}

// All returns every registered device, in no particular order.
func (r *Registry) All() []*Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Device, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	return out
}

// Up brings dev up: invokes the driver's Open and sets FlagUp.
func (r *Registry) Up(dev *Device) error {
	if dev == nil {
		return nerr.ErrInvalidArgument
	}
	if err := dev.ops.Open(dev); err != nil {
		return errors.Wrapf(err, "device %q: open", dev.name)
	}
	dev.setFlag(FlagUp)
	r.log.Info("device up", zap.String("name", dev.name))
	return nil
}

// Down brings dev down: invokes the driver's Close and clears FlagUp.
func (r *Registry) Down(dev *Device) error {
	if dev == nil {
		return nerr.ErrInvalidArgument
	}
	if err := dev.ops.Close(dev); err != nil {
		return errors.Wrapf(err, "device %q: close", dev.name)
	}
	dev.clearFlag(FlagUp)
	r.log.Info("device down", zap.String("name", dev.name))
	return nil
}

// SetMACAddr invokes the driver's SetMACAddr and, on success, updates
// the device's cached hardware address.
func (r *Registry) SetMACAddr(dev *Device, a addr.LinkAddr) error {
	if err := dev.ops.SetMACAddr(dev, a); err != nil {
		return err
	}
	dev.setHWAddr(a)
	return nil
}

// Transmit refuses if dev is not UP, otherwise delegates to
// dev.ops.StartXmit; on driver error it increments tx_errors and
// tx_dropped (spec §4.2). The buffer's ownership passes to the driver
// on success, or is the caller's to free on failure (this call does not
// free buf itself).
func (r *Registry) Transmit(dev *Device, buf *netbuf.Netbuf) error {
	if dev == nil || buf == nil {
		return nerr.ErrInvalidArgument
	}
	if !dev.IsUp() {
		return nerr.ErrDeviceDown
	}
	if err := dev.ops.StartXmit(dev, buf); err != nil {
		atomic.AddUint64(&dev.stats.TxErrors, 1)
		atomic.AddUint64(&dev.stats.TxDropped, 1)
		if r.metrics != nil {
			r.metrics.DeviceTxErrors.WithLabelValues(dev.name).Inc()
			r.metrics.DeviceTxDropped.WithLabelValues(dev.name).Inc()
		}
		return errors.Wrapf(err, "device %q: start_xmit", dev.name)
	}
	atomic.AddUint64(&dev.stats.TxPackets, 1)
	if r.metrics != nil {
		r.metrics.DeviceTxPackets.WithLabelValues(dev.name).Inc()
	}
	return nil
}

// Receive is the driver-facing entry point (spec §6
// "netdev_receive_packet(dev, buf) on RX, transferring buffer ownership
// to the network stack"): it increments rx counters, tags buf with dev,
// applies any attached capture filter, and hands off to the registered
// link-layer handler.
func (r *Registry) Receive(dev *Device, buf *netbuf.Netbuf) error {
	if dev == nil || buf == nil {
		return nerr.ErrInvalidArgument
	}
	if !dev.admits(buf.Bytes()) {
		return nil
	}
	atomic.AddUint64(&dev.stats.RxPackets, 1)
	if r.metrics != nil {
		r.metrics.DeviceRxPackets.WithLabelValues(dev.name).Inc()
	}
	buf.Dev = dev

	r.mu.RLock()
	h := r.onReceive
	r.mu.RUnlock()
	if h == nil {
		return nil
	}
	h(dev, buf)
	return nil
}
