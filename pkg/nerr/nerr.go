// Package nerr defines the error taxonomy shared by every layer of the
// network stack (spec §7). Every layer returns one of these sentinels
// (or a value wrapped around one via errors.Is) instead of signaling
// out-of-band; callers that need to distinguish an error kind use
// errors.Is, never string matching.
package nerr

import "errors"

var (
	ErrInvalidArgument    = errors.New("nerr: invalid argument")
	ErrNoMemory           = errors.New("nerr: no memory")
	ErrNoBufferSpace      = errors.New("nerr: no buffer space")
	ErrWouldBlock         = errors.New("nerr: operation would block")
	ErrTimeout            = errors.New("nerr: timeout")
	ErrConnectionReset    = errors.New("nerr: connection reset by peer")
	ErrConnectionRefused  = errors.New("nerr: connection refused")
	ErrConnectionAborted  = errors.New("nerr: connection aborted")
	ErrHostUnreachable    = errors.New("nerr: host unreachable")
	ErrNetworkUnreachable = errors.New("nerr: network unreachable")
	ErrNoRoute            = errors.New("nerr: no route to host")
	ErrAddressInUse       = errors.New("nerr: address already in use")
	ErrNotConnected       = errors.New("nerr: socket not connected")
	ErrAlreadyConnected   = errors.New("nerr: socket already connected")
	ErrNotBound           = errors.New("nerr: socket not bound")
	ErrInvalidState       = errors.New("nerr: invalid state for operation")
	ErrChecksumMismatch   = errors.New("nerr: checksum mismatch")
	ErrNoProtocol         = errors.New("nerr: no protocol handler")
	ErrNoSocket           = errors.New("nerr: no matching socket")
	ErrBufferFull         = errors.New("nerr: buffer full")
	ErrFragmentTimeout    = errors.New("nerr: fragment reassembly timeout")
	ErrNXDomain           = errors.New("nerr: non-existent domain")
	ErrServFail           = errors.New("nerr: server failure")
	ErrRefused            = errors.New("nerr: query refused")

	// ErrNoSuchDevice and ErrDeviceDown are device-registry specific but
	// belong to the same taxonomy (spec §4.2).
	ErrNoSuchDevice = errors.New("nerr: no such device")
	ErrDeviceDown   = errors.New("nerr: device is down")

	// ErrDuplicateName is returned by the device registry on a name clash.
	ErrDuplicateName = errors.New("nerr: duplicate device name")

	// ErrBoundaryCross is returned by netbuf head/tail operations that
	// would move head or tail outside [buffer_base, buffer_end].
	ErrBoundaryCross = errors.New("nerr: netbuf operation would cross a boundary")

	// ErrPointerLoop is returned by the DNS name decoder when a
	// compression pointer chain exceeds the configured hop limit.
	ErrPointerLoop = errors.New("nerr: dns compression pointer loop")
)
