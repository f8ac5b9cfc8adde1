package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/client"
)

var listCmd = &cobra.Command{
	Use:     "list <kind>",
	Short:   "Show one page of a listing",
	GroupID: "listings",
	Long: `Show one page of a listing.

Context parameters are passed with --param, e.g. --param courseid=11.
Filters are passed with --filter name=value and may repeat; a value that
is a JSON array is sent as is, so --filter 'startdate=[1700000000,0]'
sends both bounds of a date filter.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := listingRequestFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		resp, err := dtClient.GetListing(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		return printListingTable(cmd.OutOrStdout(), resp)
	},
}

var optionsCmd = &cobra.Command{
	Use:     "options <kind> <filter>",
	Short:   "Show the child options of a dependent filter",
	GroupID: "listings",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringToString("param")
		parent, _ := cmd.Flags().GetString("parent")
		opts, err := dtClient.FilterOptions(cmd.Context(), &client.FilterOptionsRequest{
			Kind:   args[0],
			Params: params,
			Filter: args[1],
			Parent: parent,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), opts)
		}
		return printChoicesTable(cmd.OutOrStdout(), opts)
	},
}

var exportCmd = &cobra.Command{
	Use:     "export <kind>",
	Short:   "Export one page of a listing as an XLSX workbook",
	GroupID: "listings",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := listingRequestFromFlags(cmd, args[0])
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("output")
		if path == "" {
			path = args[0] + ".xlsx"
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := dtClient.Export(cmd.Context(), req, f); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		return nil
	},
}

// listingRequestFromFlags builds a listing request from the shared
// --param, --filter, --page and --sort flags.
func listingRequestFromFlags(cmd *cobra.Command, kind string) (*client.ListingRequest, error) {
	params, _ := cmd.Flags().GetStringToString("param")
	rawFilters, _ := cmd.Flags().GetStringArray("filter")
	page, _ := cmd.Flags().GetInt("page")
	sort, _ := cmd.Flags().GetString("sort")

	filters, err := parseFilterFlags(rawFilters)
	if err != nil {
		return nil, err
	}
	return &client.ListingRequest{
		Kind:    kind,
		Params:  params,
		Filters: filters,
		Page:    page,
		Sort:    sort,
	}, nil
}

// parseFilterFlags turns name=value pairs into a filter set. Repeating a
// name appends to its values.
func parseFilterFlags(pairs []string) (map[string][]any, error) {
	out := map[string][]any{}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid filter %q: want name=value", pair)
		}
		var values []any
		if strings.HasPrefix(strings.TrimSpace(value), "[") && json.Unmarshal([]byte(value), &values) == nil {
			out[name] = append(out[name], values...)
			continue
		}
		out[name] = append(out[name], value)
	}
	return out, nil
}

func addListingFlags(cmd *cobra.Command) {
	cmd.Flags().StringToString("param", nil, "listing context parameter (key=value)")
	cmd.Flags().StringArray("filter", nil, "filter value (name=value, repeatable)")
	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().String("sort", "", "sort column")
}

func init() {
	addListingFlags(listCmd)
	addListingFlags(exportCmd)
	exportCmd.Flags().StringP("output", "o", "", "output file (default <kind>.xlsx)")

	optionsCmd.Flags().StringToString("param", nil, "listing context parameter (key=value)")
	optionsCmd.Flags().String("parent", "", "selected parent value")
}
