package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/client"
)

var savedCmd = &cobra.Command{
	Use:     "saved",
	Short:   "Manage saved searches",
	GroupID: "searches",
}

var savedSearchCmd = &cobra.Command{
	Use:     "search <kind>",
	Aliases: []string{"list"},
	Short:   "List the saved searches visible in a listing context",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringToString("param")
		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")

		sums, err := dtClient.SearchSaved(cmd.Context(), &client.SearchSavedRequest{
			Kind:   args[0],
			Params: params,
			Query:  query,
			Limit:  limit,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), sums)
		}
		return printSearchesTable(cmd.OutOrStdout(), sums)
	},
}

var savedSaveCmd = &cobra.Command{
	Use:   "save <kind> <name>",
	Short: "Save the given filters as a search",
	Long: `Save the given filters as a search.

Without --id a new search is created. Saving over a search owned by
someone else, or from another listing context, stores a copy.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringToString("param")
		rawFilters, _ := cmd.Flags().GetStringArray("filter")
		id, _ := cmd.Flags().GetString("id")
		shared, _ := cmd.Flags().GetBool("shared")
		isDefault, _ := cmd.Flags().GetBool("default")

		filters, err := parseFilterFlags(rawFilters)
		if err != nil {
			return err
		}
		resp, err := dtClient.SaveSearch(cmd.Context(), &client.SaveSearchRequest{
			ID:        id,
			Kind:      args[0],
			Params:    params,
			Name:      args[1],
			Shared:    shared,
			IsDefault: isDefault,
			Filters:   filters,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		switch {
		case resp.CopiedFrom != "":
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (copy of %s)\n", resp.ID, resp.CopiedFrom)
		case resp.Created:
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", resp.ID)
		default:
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", resp.ID)
		}
		return nil
	},
}

var savedDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved search you own",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dtClient.DeleteSearch(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	savedSearchCmd.Flags().StringToString("param", nil, "listing context parameter (key=value)")
	savedSearchCmd.Flags().String("query", "", "match names containing this text")
	savedSearchCmd.Flags().Int("limit", 0, "maximum number of results")

	savedSaveCmd.Flags().StringToString("param", nil, "listing context parameter (key=value)")
	savedSaveCmd.Flags().StringArray("filter", nil, "filter value (name=value, repeatable)")
	savedSaveCmd.Flags().String("id", "", "update this saved search")
	savedSaveCmd.Flags().Bool("shared", false, "share with everyone in the listing context")
	savedSaveCmd.Flags().Bool("default", false, "load this search when the listing opens")

	savedCmd.AddCommand(savedSearchCmd)
	savedCmd.AddCommand(savedSaveCmd)
	savedCmd.AddCommand(savedDeleteCmd)
}
