package config

import (
	"path/filepath"
	"time"
)

const (
	DefaultRedirectURL           = "http://localhost:3000/auth"
	DefaultPostLogoutRedirectURL = "http://localhost:3000"
	DefaultAPIBaseURL            = "http://localhost:3001/api"
	DefaultAPITimeout            = 10 * time.Second
	DefaultAPIRetries            = 3
	DefaultAPIRetryDelay         = time.Second
	DefaultLocale                = "en"
	DefaultRedisAddr             = "localhost:6379"
	DefaultProfile               = "default"
	DefaultLogLevel              = "warn"
)

// SupportedLocales lists the locales the storefront routes under.
var SupportedLocales = []string{"en", "no"}

// GetDefaultConfig returns the built-in configuration. configDir is the
// user configuration directory; the file backend stores its session below it.
func GetDefaultConfig(configDir string) Config {
	return Config{
		Identity: IdentityConfig{
			RedirectURL:           DefaultRedirectURL,
			PostLogoutRedirectURL: DefaultPostLogoutRedirectURL,
			Scopes:                []string{"openid", "profile", "email", "offline_access"},
		},
		API: APIConfig{
			BaseURL:    DefaultAPIBaseURL,
			Timeout:    DefaultAPITimeout,
			Retries:    DefaultAPIRetries,
			RetryDelay: DefaultAPIRetryDelay,
		},
		Storage: StorageConfig{
			Backend:   StorageFile,
			Dir:       filepath.Join(configDir, "session"),
			RedisAddr: DefaultRedisAddr,
			Profile:   DefaultProfile,
		},
		DefaultLocale: DefaultLocale,
		LogLevel:      DefaultLogLevel,
	}
}
