package config

import (
	"net/url"
	"time"

	"shopauth/pkg/auth"
)

// Config is the top-level configuration structure for shopauth.
type Config struct {
	Identity IdentityConfig `yaml:"identity"`
	API      APIConfig      `yaml:"api"`
	Storage  StorageConfig  `yaml:"storage"`

	DefaultLocale string `yaml:"defaultLocale,omitempty" env:"DEFAULT_LOCALE"`
	LogLevel      string `yaml:"logLevel,omitempty" env:"SHOPAUTH_LOG_LEVEL"`
}

// IdentityConfig configures the B2C application registration.
type IdentityConfig struct {
	ClientID string `yaml:"clientId,omitempty" env:"AD_PUBLIC_CLIENT_ID"`
	// Authority is the Vipps user flow, also used when no method is given.
	Authority      string `yaml:"authority,omitempty" env:"AD_PUBLIC_AUTHORITY"`
	AuthorityPhone string `yaml:"authorityPhone,omitempty" env:"AD_PUBLIC_AUTHORITY_PHONE"`
	KnownAuthority string `yaml:"knownAuthority,omitempty" env:"AD_PUBLIC_KNOWN_AUTHORITY"`

	RedirectURL           string `yaml:"redirectUrl,omitempty" env:"AD_PUBLIC_REDIRECT_URL"`
	PostLogoutRedirectURL string `yaml:"postLogoutRedirectUrl,omitempty" env:"AD_PUBLIC_POST_LOGOUT_REDIRECT_URL"`

	Scopes []string `yaml:"scopes,omitempty" env:"AD_PUBLIC_SCOPES" envSeparator:" "`
}

// AuthorityFor returns the authority URL serving the given method.
// An empty result means the method is not configured.
func (c IdentityConfig) AuthorityFor(method auth.AuthMethod) string {
	if method == auth.MethodOTP {
		return c.AuthorityPhone
	}
	return c.Authority
}

// KnownAuthorityHost returns the configured known authority, falling back
// to the host of the primary authority.
func (c IdentityConfig) KnownAuthorityHost() string {
	if c.KnownAuthority != "" {
		return c.KnownAuthority
	}
	u, err := url.Parse(c.Authority)
	if err != nil {
		return ""
	}
	return u.Host
}

// APIConfig configures the authenticated storefront API client.
type APIConfig struct {
	BaseURL    string        `yaml:"baseUrl,omitempty" env:"API_BASE_URL"`
	Timeout    time.Duration `yaml:"timeout,omitempty" env:"API_TIMEOUT"`
	Retries    int           `yaml:"retries" env:"API_RETRIES"`
	RetryDelay time.Duration `yaml:"retryDelay,omitempty" env:"API_RETRY_DELAY"`
	Version    string        `yaml:"version,omitempty" env:"API_VERSION"`
}

// StorageBackend selects where the session is persisted.
type StorageBackend string

const (
	StorageMemory StorageBackend = "memory"
	StorageFile   StorageBackend = "file"
	StorageRedis  StorageBackend = "redis"
)

// StorageConfig configures the token store backend.
type StorageConfig struct {
	Backend StorageBackend `yaml:"backend,omitempty" env:"SHOPAUTH_STORAGE"`
	Dir     string         `yaml:"dir,omitempty" env:"SHOPAUTH_STORAGE_DIR"`

	RedisAddr     string `yaml:"redisAddr,omitempty" env:"SHOPAUTH_REDIS_ADDR"`
	RedisPassword string `yaml:"redisPassword,omitempty" env:"SHOPAUTH_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redisDb,omitempty" env:"SHOPAUTH_REDIS_DB"`
	// Profile namespaces the persisted keys so several users can share one redis.
	Profile string `yaml:"profile,omitempty" env:"SHOPAUTH_PROFILE"`
}
