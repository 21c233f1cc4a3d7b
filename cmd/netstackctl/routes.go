package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRoutesCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the routing table built from the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(*configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			for _, r := range s.Routes.All() {
				name := "-"
				if r.Interface != nil {
					name = r.Interface.Name()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s via %s dev %s type=%v metric=%d\n",
					r.Destination, r.Netmask, r.Gateway, name, r.Type, r.Metric)
			}
			return nil
		},
	}
}
