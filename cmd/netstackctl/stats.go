package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/cobra"
)

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the stack's counters once, without serving them",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			m := s.Metrics
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "netbuf_alloc_failures %d\n", int(testutil.ToFloat64(m.NetbufAllocFailures)))
			fmt.Fprintf(out, "ip_no_protocol %d\n", int(testutil.ToFloat64(m.IPNoProtocol)))
			fmt.Fprintf(out, "ip_fragments_failed %d\n", int(testutil.ToFloat64(m.IPFragmentsFailed)))
			fmt.Fprintf(out, "ip_checksum_errors %d\n", int(testutil.ToFloat64(m.IPChecksumErrors)))
			fmt.Fprintf(out, "udp_buffer_full %d\n", int(testutil.ToFloat64(m.UDPBufferFull)))
			fmt.Fprintf(out, "udp_datagrams_in %d\n", int(testutil.ToFloat64(m.UDPDatagramsIn)))
			fmt.Fprintf(out, "udp_datagrams_out %d\n", int(testutil.ToFloat64(m.UDPDatagramsOut)))
			fmt.Fprintf(out, "tcp_retrans_count %d\n", int(testutil.ToFloat64(m.TCPRetransCount)))
			fmt.Fprintf(out, "tcp_segments_in %d\n", int(testutil.ToFloat64(m.TCPSegmentsIn)))
			fmt.Fprintf(out, "tcp_segments_out %d\n", int(testutil.ToFloat64(m.TCPSegmentsOut)))
			fmt.Fprintf(out, "dns_cache_hits %d\n", int(testutil.ToFloat64(m.DNSCacheHits)))
			fmt.Fprintf(out, "dns_cache_misses %d\n", int(testutil.ToFloat64(m.DNSCacheMisses)))
			fmt.Fprintf(out, "dns_queries_sent %d\n", int(testutil.ToFloat64(m.DNSQueriesSent)))
			fmt.Fprintf(out, "dns_timeouts %d\n", int(testutil.ToFloat64(m.DNSTimeouts)))
			return nil
		},
	}
}
