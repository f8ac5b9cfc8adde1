package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/client"
)

var (
	httpURL    string
	token      string
	principal  string
	jsonOutput bool

	dtClient client.Client
)

func defaultHTTPURL() string {
	if s := os.Getenv("DATATABLE_URL"); s != "" {
		return s
	}
	if u := activeRemote().URL; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	if s := os.Getenv("DATATABLE_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

func defaultPrincipal() string {
	if s := os.Getenv("DATATABLE_PRINCIPAL"); s != "" {
		return s
	}
	if p := activeRemote().Principal; p != "" {
		return p
	}
	return os.Getenv("USER")
}

// noClient skips client construction for commands that work locally.
func noClient(*cobra.Command, []string) error { return nil }

var rootCmd = &cobra.Command{
	Use:          "dt <command>",
	Short:        "CLI client for the datatable listing service",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dtClient = client.NewHTTPClient(httpURL, token, principal)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dtClient != nil {
			dtClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVar(&principal, "principal", defaultPrincipal(), "principal sent with the static token")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "listings", Title: "Listings:"},
		&cobra.Group{ID: "searches", Title: "Saved searches:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Listings
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(optionsCmd)
	rootCmd.AddCommand(exportCmd)

	// Saved searches
	rootCmd.AddCommand(savedCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
