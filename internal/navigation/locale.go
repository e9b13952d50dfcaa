package navigation

import (
	"os"
	"slices"
	"strings"
)

// LocaleResolver reports the locale redirect targets are built for.
type LocaleResolver interface {
	CurrentLocale() string
}

// StaticLocale always resolves to the same locale.
type StaticLocale string

func (s StaticLocale) CurrentLocale() string { return string(s) }

// EnvLocale derives the locale from LC_ALL, LC_MESSAGES or LANG, restricted
// to the supported set. Norwegian variants (nb, nn) map to "no".
type EnvLocale struct {
	Supported []string
	Default   string

	lookup func(string) (string, bool)
}

// NewEnvLocale creates an EnvLocale reading the process environment.
func NewEnvLocale(supported []string, def string) *EnvLocale {
	return &EnvLocale{Supported: supported, Default: def, lookup: os.LookupEnv}
}

func (e *EnvLocale) CurrentLocale() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v, ok := e.lookup(name)
		if !ok || v == "" || v == "C" || v == "POSIX" {
			continue
		}
		lang := strings.ToLower(v)
		if i := strings.IndexAny(lang, "_.@-"); i >= 0 {
			lang = lang[:i]
		}
		if lang == "nb" || lang == "nn" {
			lang = "no"
		}
		if slices.Contains(e.Supported, lang) {
			return lang
		}
	}
	return e.Default
}

// HomePath returns the locale-aware home route, e.g. "/en".
func HomePath(locale string) string {
	if locale == "" {
		return "/"
	}
	return "/" + locale
}
