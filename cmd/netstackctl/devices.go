package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Print every registered device and its address configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, dev := range s.Devices.All() {
				ip, netmask, gateway := dev.Addressing()
				up := "down"
				if dev.IsUp() {
					up = "up"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %s <%s> type=%s mtu=%d hwaddr=%s inet=%s/%s gw=%s\n",
					dev.Index(), dev.Name(), up, dev.Type(), dev.MTU(), dev.HWAddr(), ip, netmask, gateway)
			}
			return nil
		},
	}
}
