package cmd

import (
	"github.com/spf13/cobra"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored session",
	Long: `Show the session stored for this profile.

The identity provider is not contacted; use 'shopauth refresh' to renew an
expired token or 'shopauth whoami' to check the session against it.

Examples:
  shopauth status               # Human readable summary
  shopauth status -o json       # Machine readable`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "console", "Output format: console, table, json, yaml")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stored, err := a.store.Read(ctx)
	if err != nil {
		return err
	}
	st := statusFromStore(stored, timeNow())
	if err := newFormatter(statusOutput).FormatStatus(cmd.OutOrStdout(), st); err != nil {
		return err
	}
	if !st.Authenticated {
		authPrint(cmd.OutOrStdout(), "\nRun: shopauth login\n")
	}
	return nil
}
