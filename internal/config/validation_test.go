package config

import (
	"bytes"
	"testing"
	"time"

	"shopauth/pkg/logging"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	cfg := GetDefaultConfig("/tmp/shopauth")
	cfg.Identity.ClientID = "client"
	cfg.Identity.Authority = "https://shop.b2clogin.com/shop.onmicrosoft.com/B2C_1_vipps"
	cfg.Identity.AuthorityPhone = "https://shop.b2clogin.com/shop.onmicrosoft.com/B2C_1_otp"
	return cfg
}

func fields(errs ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate_Complete(t *testing.T) {
	errs := validConfig().Validate()
	assert.False(t, errs.HasErrors(), errs.Error())
}

func TestValidate_MissingIdentity(t *testing.T) {
	cfg := GetDefaultConfig("/tmp/shopauth")

	errs := cfg.Validate()

	assert.ElementsMatch(t, []string{
		"AD_PUBLIC_CLIENT_ID",
		"AD_PUBLIC_AUTHORITY",
		"AD_PUBLIC_AUTHORITY_PHONE",
	}, fields(errs))
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"timeout too short", func(c *Config) { c.API.Timeout = 500 * time.Millisecond }, "API_TIMEOUT"},
		{"timeout too long", func(c *Config) { c.API.Timeout = 2 * time.Minute }, "API_TIMEOUT"},
		{"negative retries", func(c *Config) { c.API.Retries = -1 }, "API_RETRIES"},
		{"too many retries", func(c *Config) { c.API.Retries = 11 }, "API_RETRIES"},
		{"retry delay too short", func(c *Config) { c.API.RetryDelay = 10 * time.Millisecond }, "API_RETRY_DELAY"},
		{"retry delay too long", func(c *Config) { c.API.RetryDelay = 11 * time.Second }, "API_RETRY_DELAY"},
		{"relative base url", func(c *Config) { c.API.BaseURL = "api" }, "API_BASE_URL"},
		{"unsupported locale", func(c *Config) { c.DefaultLocale = "de" }, "DEFAULT_LOCALE"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "etcd" }, "SHOPAUTH_STORAGE"},
		{"relative redirect", func(c *Config) { c.Identity.RedirectURL = "/auth" }, "AD_PUBLIC_REDIRECT_URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			assert.Equal(t, []string{tt.field}, fields(cfg.Validate()))
		})
	}
}

func TestLogProblems_IsNonFatal(t *testing.T) {
	var buf bytes.Buffer
	logging.InitForCLI(logging.LevelInfo, &buf)

	cfg := validConfig()
	cfg.Identity.ClientID = ""

	errs := cfg.LogProblems()

	assert.Len(t, errs, 1)
	assert.Contains(t, buf.String(), "AD_PUBLIC_CLIENT_ID is required")
}
