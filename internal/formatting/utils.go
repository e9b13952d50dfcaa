package formatting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"

	"shopauth/pkg/auth"
)

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt.Sprintf when the value cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// PrettyJSONCompact formats v as single-line JSON.
func PrettyJSONCompact(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// FormatDuration formats a duration in a human-readable way.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "expired"
	}
	if d < time.Minute {
		return "< 1 minute"
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	days := int(d.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}

// FormatExpiry describes expiresAt relative to now, e.g. "in 5 minutes"
// or "expired 2 hours ago".
func FormatExpiry(expiresAt, now time.Time) string {
	remaining := expiresAt.Sub(now)
	if remaining > 0 {
		return "in " + FormatDuration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", FormatDuration(-remaining))
}

// statusLabel colours the session status for terminal output.
func statusLabel(st string) string {
	switch st {
	case "authenticated":
		return text.FgGreen.Sprint("Authenticated")
	case "anonymous":
		return text.FgYellow.Sprint("Not signed in")
	case "authenticating":
		return text.FgCyan.Sprint("Signing in")
	case "error":
		return text.FgRed.Sprint("Error")
	default:
		return st
	}
}

// statusRows lists the non-empty fields of st as label/value pairs.
func statusRows(st auth.Status, now time.Time) [][2]string {
	rows := [][2]string{{"Status", statusLabel(st.Status)}}
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, [2]string{label, value})
		}
	}
	add("User", st.Username)
	add("Name", st.Name)
	add("Method", st.Method)
	add("Issuer", st.Environment)
	if !st.ExpiresAt.IsZero() {
		add("Expires", FormatExpiry(st.ExpiresAt, now))
	}
	add("Error", st.Error)
	return rows
}
