package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"shopauth/pkg/logging"
)

const (
	minAPITimeout    = time.Second
	maxAPITimeout    = 60 * time.Second
	minAPIRetries    = 0
	maxAPIRetries    = 10
	minAPIRetryDelay = 100 * time.Millisecond
	maxAPIRetryDelay = 10 * time.Second
)

// Validate reports every configuration problem found. An empty result means
// the configuration is complete.
func (c Config) Validate() ValidationErrors {
	var errs ValidationErrors

	requireValue(&errs, "AD_PUBLIC_CLIENT_ID", c.Identity.ClientID)
	requireURL(&errs, "AD_PUBLIC_AUTHORITY", c.Identity.Authority)
	requireURL(&errs, "AD_PUBLIC_AUTHORITY_PHONE", c.Identity.AuthorityPhone)
	requireURL(&errs, "AD_PUBLIC_REDIRECT_URL", c.Identity.RedirectURL)
	requireURL(&errs, "AD_PUBLIC_POST_LOGOUT_REDIRECT_URL", c.Identity.PostLogoutRedirectURL)

	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		errs.Add("API_BASE_URL", "must be an absolute URL", c.API.BaseURL)
	}
	if c.API.Timeout < minAPITimeout || c.API.Timeout > maxAPITimeout {
		errs.Add("API_TIMEOUT", fmt.Sprintf("must be between %s and %s", minAPITimeout, maxAPITimeout), c.API.Timeout)
	}
	if c.API.Retries < minAPIRetries || c.API.Retries > maxAPIRetries {
		errs.Add("API_RETRIES", fmt.Sprintf("must be between %d and %d", minAPIRetries, maxAPIRetries), c.API.Retries)
	}
	if c.API.RetryDelay < minAPIRetryDelay || c.API.RetryDelay > maxAPIRetryDelay {
		errs.Add("API_RETRY_DELAY", fmt.Sprintf("must be between %s and %s", minAPIRetryDelay, maxAPIRetryDelay), c.API.RetryDelay)
	}

	if !slices.Contains(SupportedLocales, c.DefaultLocale) {
		errs.Add("DEFAULT_LOCALE", "must be one of "+strings.Join(SupportedLocales, ", "), c.DefaultLocale)
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageFile, StorageRedis:
	default:
		errs.Add("SHOPAUTH_STORAGE", "must be one of memory, file, redis", c.Storage.Backend)
	}

	return errs
}

// LogProblems validates the configuration and logs each problem as a warning.
// It returns the problems so callers can surface them, but never fails.
func (c Config) LogProblems() ValidationErrors {
	errs := c.Validate()
	for _, e := range errs {
		logging.Warn("Config", "Configuration problem: %s", e.Error())
	}
	return errs
}

func requireValue(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "is required")
	}
}

func requireURL(errs *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, "is required")
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(field, "must be an absolute URL", value)
	}
}
