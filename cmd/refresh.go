package cmd

import (
	"github.com/spf13/cobra"

	"shopauth/internal/formatting"
	"shopauth/internal/identity"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the access token",
	Long: `Renew the access token of the stored session without signing in again.

If the identity provider requires you to sign in again, the session is
cleared and the command exits with code 2.`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	if _, err := a.requireSession(); err != nil {
		return err
	}

	tokens, err := a.session.Refresh(ctx, true)
	if err != nil {
		if !a.session.State().Authenticated() {
			return &AuthRequiredError{Reason: identity.UserMessage(err)}
		}
		return &AuthFailedError{Message: identity.UserMessage(err), Reason: err}
	}

	authPrint(cmd.OutOrStdout(), "Token renewed.\n")
	if exp := tokens.ExpiresAt(); !exp.IsZero() {
		authPrint(cmd.OutOrStdout(), "  Expires:   %s\n", formatting.FormatExpiry(exp, timeNow()))
	}
	return nil
}
