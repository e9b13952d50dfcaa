package cmd

import (
	"fmt"
	"io"
	"time"

	"shopauth/internal/formatting"
	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
)

// timeNow is the clock used for expiry output.
var timeNow = time.Now

// authPrint prints only if the --quiet flag is not set.
// Use this for progress messages and non-essential output.
func authPrint(w io.Writer, format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(w, format, args...)
	}
}

// newFormatter creates the formatter selected by an --output flag value.
func newFormatter(output string) formatting.Formatter {
	return formatting.NewFactory().CreateFormatter(formatting.Options{
		Format: formatting.ParseFormat(output),
		Quiet:  quiet,
		Now:    timeNow,
	})
}

// statusFromStore summarizes a stored session without contacting the
// identity provider.
func statusFromStore(stored *tokenstore.Session, now time.Time) auth.Status {
	if stored == nil {
		return auth.Status{Status: "anonymous"}
	}
	st := auth.Status{
		Status:        "authenticated",
		Authenticated: true,
		Method:        stored.Method.String(),
		ExpiresAt:     stored.Tokens.ExpiresAt(),
	}
	if stored.Account != nil {
		st.Username = stored.Account.Username
		st.Name = stored.Account.Name
		st.Environment = stored.Account.Environment
	}
	if !stored.Tokens.Valid(now) {
		st.Error = "Access token expired, it is renewed on next use."
	}
	return st
}
