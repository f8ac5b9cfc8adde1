package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage config records (visibility, listing, capabilities)",
	Long: `Manage config records.

Keys are namespaced:
  visibility:<kind>      per-field display and filter modes
  listing:<kind>         page size and required capability
  capabilities:<user>    capability grants of a principal`,
	GroupID: "system",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <json-value>",
	Short: "Create or update a config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		value := []byte(args[1])
		if !json.Valid(value) {
			return fmt.Errorf("value must be valid JSON")
		}
		c, err := dtClient.SetConfig(cmd.Context(), args[0], value)
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), c)
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a config by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dtClient.GetConfig(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printConfig(cmd.OutOrStdout(), c)
	},
}

var configListCmd = &cobra.Command{
	Use:   "list <namespace>",
	Short: "List configs in a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configs, err := dtClient.ListConfigs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(configs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No configs found.")
			return nil
		}
		for _, c := range configs {
			if err := printConfig(cmd.OutOrStdout(), c); err != nil {
				return err
			}
		}
		return nil
	},
}

var configDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a config by key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dtClient.DeleteConfig(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted config %q\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configDeleteCmd)
}
