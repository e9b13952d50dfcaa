package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"shopauth/internal/callback"
	"shopauth/internal/identity"
	"shopauth/pkg/auth"
)

var (
	loginMethod  string
	loginTimeout time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the storefront",
	Long: `Sign in with Vipps or a one-time passcode sent to your phone.

The browser opens on the sign-in page of the selected method. After you
complete it, the identity provider redirects back to a local callback page
and the session is stored for later commands.

Examples:
  shopauth login                  # Sign in with Vipps
  shopauth login --method otp     # Sign in with a one-time passcode`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginMethod, "method", "m", string(auth.MethodVipps), "Sign-in method: vipps or otp")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", callback.DefaultTimeout, "How long to wait for the browser to return")
}

func runLogin(cmd *cobra.Command, args []string) error {
	method, err := auth.ParseAuthMethod(loginMethod)
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}
	if st := a.session.State(); st.Authenticated() {
		authPrint(cmd.OutOrStdout(), "Already signed in as %s (%s).\n", st.Account.Username, st.Method)
		authPrint(cmd.OutOrStdout(), "Run 'shopauth logout' first to switch accounts.\n")
		return nil
	}

	handler := callback.NewHandler(a.idp, a.session, a.store, a.locale)
	srv, err := callback.NewServer(handler, a.cfg.Identity.RedirectURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	if _, err := srv.Start(ctx); err != nil {
		return err
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for sign-in in the browser..."
	s.Writer = cmd.ErrOrStderr()
	if !quiet {
		s.Start()
	}

	var outcome callback.Outcome
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.session.Login(gctx, method)
	})
	g.Go(func() error {
		out, err := srv.Wait(gctx)
		outcome = out
		return err
	})
	err = g.Wait()
	s.Stop()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &AuthFailedError{Message: fmt.Sprintf("no response from the browser within %s", loginTimeout), Reason: err}
		}
		return &AuthFailedError{Message: identity.UserMessage(err), Reason: err}
	}
	return reportOutcome(cmd, outcome)
}

// reportOutcome prints a successful login or converts a failed one into
// an AuthFailedError.
func reportOutcome(cmd *cobra.Command, out callback.Outcome) error {
	if out.Status != callback.StatusSuccess {
		return &AuthFailedError{Message: out.Message, Reason: out.Err}
	}
	w := cmd.OutOrStdout()
	authPrint(w, "%s\n", out.Message)
	if out.Account != nil {
		fmt.Fprintf(w, "Signed in as %s (%s)\n", out.Account.Username, out.Method)
	}
	return nil
}
