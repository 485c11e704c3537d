package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Obtain an EOG access token",
	Long:  "Requests an Earth Observation Group access token for the VIIRS downloads and caches it at eog.token_path. Prompts for missing credentials when run in a terminal.",
	RunE:  runAuth,
}

func init() {
	authCmd.Flags().Bool("refresh", false, "Request a new token even if the cached one is still valid")
	rootCmd.AddCommand(authCmd)
}

func runAuth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	refresh, _ := cmd.Flags().GetBool("refresh")
	client := newEOGClient(cfg)

	if refresh {
		tok, err := client.Refresh(ctx)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token refreshed, expires %s\n", tok.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
		return nil
	}

	if _, err := client.AccessToken(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "token ready at %s\n", cfg.EOG.TokenPath)
	return nil
}
