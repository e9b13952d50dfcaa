package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopauth/internal/formatting"
)

var whoamiOutput string

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Long: `Start the session the way every command does, renewing an expired
token once, and print the signed-in user. Exits with code 2 when nobody is
signed in.`,
	Args: cobra.NoArgs,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
	whoamiCmd.Flags().StringVarP(&whoamiOutput, "output", "o", "console", "Output format: console, json, yaml")
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	st, err := a.requireSession()
	if err != nil {
		return err
	}

	profile := st.Account.Profile()
	if formatting.ParseFormat(whoamiOutput) == formatting.FormatConsole {
		who := profile.Email
		if profile.Name != "" {
			who = fmt.Sprintf("%s <%s>", profile.Name, profile.Email)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s with %s\n", who, st.Method)
		return nil
	}
	return newFormatter(whoamiOutput).FormatData(cmd.OutOrStdout(), profile)
}
