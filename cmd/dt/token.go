package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/datatable/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:     "token <principal>",
	Short:   "Issue a signed bearer token",
	GroupID: "system",
	Long: `Issue an HS256 bearer token for principal, signed with the server's
JWT secret (--secret or DATATABLE_JWT_SECRET). Capabilities granted with
--cap are carried in the token, e.g. --cap datatable:view@course:11.`,
	Args:              cobra.ExactArgs(1),
	PersistentPreRunE: noClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		secret, _ := cmd.Flags().GetString("secret")
		if secret == "" {
			secret = os.Getenv("DATATABLE_JWT_SECRET")
		}
		if secret == "" {
			return fmt.Errorf("a signing secret is required (--secret or DATATABLE_JWT_SECRET)")
		}
		caps, _ := cmd.Flags().GetStringSlice("cap")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if ttl <= 0 {
			return fmt.Errorf("--ttl must be positive")
		}

		tok, err := auth.IssueToken(secret, args[0], caps, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("secret", "", "JWT signing secret")
	tokenCmd.Flags().StringSlice("cap", nil, "capability grant carried in the token (repeatable)")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}
