package cmd

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	Long: `Clear the stored session and end it at the identity provider.

The local session is cleared even when the provider cannot be reached, and
every other shopauth process sharing the session is signed out as well.`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	// A failed start still leaves a session we can clear.
	_ = a.start(ctx)

	st := a.session.State()
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	if st.Account != nil {
		authPrint(cmd.OutOrStdout(), "Signed out %s.\n", st.Account.Username)
	} else {
		authPrint(cmd.OutOrStdout(), "No active session, local state cleared.\n")
	}
	return nil
}
