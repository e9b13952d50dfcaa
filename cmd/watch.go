package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"shopauth/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow session changes made by other processes",
	Long: `Print a line whenever the session changes, for example when you sign
in or out from another terminal or when another process renews the token.
Stops on Ctrl-C.

With --metrics-addr the process also serves Prometheus metrics at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchMetricsAddr string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. 127.0.0.1:9464")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.start(ctx); err != nil {
		return err
	}

	if watchMetricsAddr != "" {
		addr, err := serveMetrics(ctx, watchMetricsAddr)
		if err != nil {
			return err
		}
		authPrint(cmd.ErrOrStderr(), "Metrics at http://%s/metrics\n", addr)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, describeState(a.session.State()))

	changes := make(chan session.State, 16)
	cancel := a.session.Subscribe(func(st session.State) {
		select {
		case changes <- st:
		default:
		}
	})
	defer cancel()

	authPrint(cmd.ErrOrStderr(), "Watching for session changes, press Ctrl-C to stop.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-changes:
			fmt.Fprintf(w, "%s  %s\n", timeNow().Format("15:04:05"), describeState(st))
		}
	}
}

// describeState renders a session snapshot as one line.
func describeState(st session.State) string {
	switch st.Status {
	case session.StatusAuthenticated:
		return fmt.Sprintf("%s as %s (%s)", text.FgGreen.Sprint("signed in"), st.Account.Username, st.Method)
	case session.StatusAnonymous:
		return text.FgYellow.Sprint("signed out")
	case session.StatusAuthenticating:
		return text.FgCyan.Sprint("signing in")
	case session.StatusError:
		return fmt.Sprintf("%s: %s", text.FgRed.Sprint("error"), st.Error)
	default:
		return st.Status.String()
	}
}
