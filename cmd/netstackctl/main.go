// Command netstackctl brings up a network stack from a configuration
// file and serves its metrics, or inspects one long enough to print its
// routing table, device list, or counters (spec §9's "permit dependency
// injection for tests" implies a thin, swappable entry point; this is
// its CLI counterpart). Grounded on DataDog-datadog-agent's cobra root
// command conventions, scaled down to this module's single binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "netstackctl",
		Short: "Operate and inspect the user-space network stack",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "netstack.yaml", "path to the stack configuration file")

	root.AddCommand(
		newRunCmd(&configPath),
		newRoutesCmd(&configPath),
		newDevicesCmd(&configPath),
		newStatsCmd(&configPath),
	)
	return root
}
