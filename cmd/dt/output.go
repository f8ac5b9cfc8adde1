package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/model"
	"github.com/alfredjeanlab/datatable/internal/ui"
)

// maxCellWidth bounds a table cell when stdout is not a terminal.
const maxCellWidth = 40

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// cellWidth spreads the terminal width over columns.
func cellWidth(columns int) int {
	width := ui.Width()
	if width == 0 || columns == 0 {
		return maxCellWidth
	}
	if per := width/columns - 2; per > 8 {
		return per
	}
	return 8
}

func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "yes"
		}
		return "no"
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func printListingTable(w io.Writer, resp *datatable.Response) error {
	columns := resp.Fields.Visible
	width := cellWidth(len(columns) + 1)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	headers := []string{"NAME"}
	for _, c := range columns {
		label := resp.Labels[c]
		if label == "" {
			label = c
		}
		headers = append(headers, strings.ToUpper(ui.Truncate(label, width)))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	for _, row := range resp.Children {
		cells := []string{ui.Truncate(row.Header, width)}
		for _, c := range columns {
			cells = append(cells, ui.Truncate(formatCell(row.Fields[c]), width))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summary := fmt.Sprintf("\n%d rows (page %d, %d total)", len(resp.Children), resp.Page, resp.TotalResults)
	if len(resp.Dropped) > 0 {
		summary += fmt.Sprintf("; ignored invalid filters: %s", strings.Join(resp.Dropped, ", "))
	}
	_, err := fmt.Fprintln(w, ui.RenderMuted(summary))
	return err
}

func printChoicesTable(w io.Writer, choices []model.Choice) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VALUE\tLABEL")
	for _, c := range choices {
		fmt.Fprintf(tw, "%s\t%s\n", c.Value, c.Label)
	}
	return tw.Flush()
}

func printSearchesTable(w io.Writer, sums []model.SavedSearchSummary) error {
	if len(sums) == 0 {
		_, err := fmt.Fprintln(w, "No saved searches found.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSHARED\tDEFAULT\tEDITABLE\tFILTERS")
	for _, s := range sums {
		names := make([]string, 0, len(s.Filters))
		for name := range s.Filters {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			ui.Truncate(s.Name, maxCellWidth),
			formatCell(s.Shared),
			formatCell(s.IsDefault),
			formatCell(s.CanEdit),
			strings.Join(names, ","),
		)
	}
	return tw.Flush()
}

func printConfig(w io.Writer, c *model.Config) error {
	var value any
	_ = json.Unmarshal(c.Value, &value)
	out := map[string]any{"key": c.Key, "value": value}
	if !c.UpdatedAt.IsZero() {
		out["updated_at"] = c.UpdatedAt.Format(time.RFC3339)
	}
	return printJSON(w, out)
}
