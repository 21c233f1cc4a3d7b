// Package metrics exports every statistics counter named across spec §4
// (netbuf pool free_count/alloc_failures, device rx/tx counters, IP
// no_protocol/fragments_failed, UDP buffer_full, TCP retrans_count, DNS
// cache_hits/queries_sent) as Prometheus metrics, grounded on
// runZeroInc-sockstats's and runZeroInc-conniver's pkg/exporter
// collector pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Stack bundles every counter/gauge the network stack updates. One
// instance is created per stack.Stack and registered against a
// caller-supplied *prometheus.Registry (tests use a fresh registry per
// case to avoid collisions).
type Stack struct {
	NetbufFree          prometheus.Gauge
	NetbufAllocFailures prometheus.Counter

	DeviceRxPackets prometheus.CounterVec
	DeviceTxPackets prometheus.CounterVec
	DeviceRxErrors  prometheus.CounterVec
	DeviceTxErrors  prometheus.CounterVec
	DeviceTxDropped prometheus.CounterVec

	IPNoProtocol      prometheus.Counter
	IPFragmentsFailed prometheus.Counter
	IPChecksumErrors  prometheus.Counter

	UDPBufferFull prometheus.Counter
	UDPDatagramsIn  prometheus.Counter
	UDPDatagramsOut prometheus.Counter

	TCPRetransCount prometheus.Counter
	TCPSegmentsIn   prometheus.Counter
	TCPSegmentsOut  prometheus.Counter

	DNSCacheHits   prometheus.Counter
	DNSCacheMisses prometheus.Counter
	DNSQueriesSent prometheus.Counter
	DNSTimeouts    prometheus.Counter
}

// New builds a Stack with every metric named but not yet registered.
func New() *Stack {
	return &Stack{
		NetbufFree:          prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "netstack", Subsystem: "netbuf", Name: "free_count"}),
		NetbufAllocFailures: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "netbuf", Name: "alloc_failures_total"}),

		DeviceRxPackets: *prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "device", Name: "rx_packets_total"}, []string{"device"}),
		DeviceTxPackets: *prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "device", Name: "tx_packets_total"}, []string{"device"}),
		DeviceRxErrors:  *prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "device", Name: "rx_errors_total"}, []string{"device"}),
		DeviceTxErrors:  *prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "device", Name: "tx_errors_total"}, []string{"device"}),
		DeviceTxDropped: *prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "device", Name: "tx_dropped_total"}, []string{"device"}),

		IPNoProtocol:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "ip", Name: "no_protocol_total"}),
		IPFragmentsFailed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "ip", Name: "fragments_failed_total"}),
		IPChecksumErrors:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "ip", Name: "checksum_errors_total"}),

		UDPBufferFull:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "udp", Name: "buffer_full_total"}),
		UDPDatagramsIn:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "udp", Name: "datagrams_in_total"}),
		UDPDatagramsOut: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "udp", Name: "datagrams_out_total"}),

		TCPRetransCount: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "tcp", Name: "retrans_total"}),
		TCPSegmentsIn:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "tcp", Name: "segments_in_total"}),
		TCPSegmentsOut:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "tcp", Name: "segments_out_total"}),

		DNSCacheHits:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "dns", Name: "cache_hits_total"}),
		DNSCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "dns", Name: "cache_misses_total"}),
		DNSQueriesSent: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "dns", Name: "queries_sent_total"}),
		DNSTimeouts:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: "netstack", Subsystem: "dns", Name: "timeouts_total"}),
	}
}

// MustRegister registers every collector against reg, panicking on a
// duplicate registration (mirrors prometheus.MustRegister's contract;
// callers that need graceful handling should register fields
// individually instead).
func (s *Stack) MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		s.NetbufFree, s.NetbufAllocFailures,
		s.DeviceRxPackets, s.DeviceTxPackets, s.DeviceRxErrors, s.DeviceTxErrors, s.DeviceTxDropped,
		s.IPNoProtocol, s.IPFragmentsFailed, s.IPChecksumErrors,
		s.UDPBufferFull, s.UDPDatagramsIn, s.UDPDatagramsOut,
		s.TCPRetransCount, s.TCPSegmentsIn, s.TCPSegmentsOut,
		s.DNSCacheHits, s.DNSCacheMisses, s.DNSQueriesSent, s.DNSTimeouts,
	)
}
