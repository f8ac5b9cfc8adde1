package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/client"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of the datatable service",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")

		var status string
		if grpcAddr != "" {
			hc, err := client.NewGRPCHealthClient(grpcAddr)
			if err != nil {
				return err
			}
			defer hc.Close()
			s, err := hc.Check(cmd.Context(), "")
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}
			status = s
		} else {
			s, err := dtClient.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("checking health: %w", err)
			}
			status = s
		}

		if jsonOutput {
			if err := printJSON(cmd.OutOrStdout(), map[string]string{"status": status}); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Health: %s\n", status)
		}

		if status != "ok" && status != "SERVING" {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("grpc", "", "check the gRPC health service at this address instead")
}
