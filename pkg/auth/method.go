package auth

import (
	"fmt"
	"slices"
	"strings"
)

// AuthMethod identifies the user flow a session was created with.
type AuthMethod string

const (
	MethodNone  AuthMethod = ""
	MethodVipps AuthMethod = "vipps"
	MethodOTP   AuthMethod = "otp"
)

func (m AuthMethod) String() string {
	if m == MethodNone {
		return "none"
	}
	return string(m)
}

// Valid reports whether m is one of the supported methods.
func (m AuthMethod) Valid() bool {
	return m == MethodVipps || m == MethodOTP
}

// ParseAuthMethod parses a persisted or user-supplied method name.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch m := AuthMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodVipps, MethodOTP:
		return m, nil
	case "phone":
		return MethodOTP, nil
	default:
		return MethodNone, fmt.Errorf("unknown auth method %q (expected vipps or otp)", s)
	}
}

// DetermineAuthMethod classifies the account by issuer, then by the amr
// claim, then by the user flow name. Returns MethodNone when nothing matches.
func DetermineAuthMethod(account *Account) AuthMethod {
	if account == nil {
		return MethodNone
	}

	if strings.Contains(strings.ToLower(account.Issuer), "vipps") {
		return MethodVipps
	}

	amr := make([]string, len(account.AMR))
	for i, v := range account.AMR {
		amr[i] = strings.ToLower(v)
	}
	if slices.Contains(amr, "otp") || slices.Contains(amr, "phone") {
		return MethodOTP
	}

	flow := strings.ToLower(account.UserFlow)
	switch {
	case strings.Contains(flow, "vipps"):
		return MethodVipps
	case strings.Contains(flow, "otp"):
		return MethodOTP
	}

	return MethodNone
}
