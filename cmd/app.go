package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"

	"shopauth/internal/apiclient"
	"shopauth/internal/config"
	"shopauth/internal/identity"
	"shopauth/internal/navigation"
	"shopauth/internal/session"
	"shopauth/internal/tokenstore"
	"shopauth/pkg/logging"
)

// app is the per-invocation object graph. Commands build it once and pass
// it around by reference.
type app struct {
	cfg     config.Config
	backend tokenstore.Backend
	store   *tokenstore.Store
	nav     *navigation.BrowserNavigator
	idp     *identity.Client
	session *session.Manager
	api     *apiclient.Client
	locale  navigation.LocaleResolver
}

// loadConfig reads the configuration and logs every validation problem.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel == "" && cfg.LogLevel != "" {
		logging.InitForCLI(logging.ParseLevel(cfg.LogLevel), os.Stderr)
	}
	cfg.LogProblems()
	return cfg, nil
}

// openBackend creates the storage backend selected by the configuration.
func openBackend(ctx context.Context, cfg config.StorageConfig) (tokenstore.Backend, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		return tokenstore.NewMemoryBackend(), nil
	case config.StorageFile, "":
		return tokenstore.NewFileBackend(cfg.Dir)
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		backend := tokenstore.NewRedisBackend(client, cfg.Profile)
		if err := backend.Ping(ctx); err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// openStore loads the configuration and opens the token store only.
func openStore(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		backend: backend,
		store:   tokenstore.New(backend),
		locale:  navigation.NewEnvLocale(config.SupportedLocales, cfg.DefaultLocale),
	}, nil
}

// newApp wires the full stack. The session is not started; call start.
func newApp(ctx context.Context, out io.Writer) (*app, error) {
	a, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a.nav, err = navigation.NewBrowserNavigator(a.cfg.Identity.RedirectURL, out)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.idp = identity.New(a.cfg.Identity, a.store, a.nav)
	a.session = session.New(a.idp, a.store)
	a.api = apiclient.New(a.cfg.API, a.session)
	return a, nil
}

// start initializes the identity provider and rehydrates the session.
func (a *app) start(ctx context.Context) error {
	if err := a.session.Start(ctx); err != nil {
		return &AuthFailedError{Message: identity.UserMessage(err), Reason: err}
	}
	return nil
}

// requireSession returns the authenticated state or an AuthRequiredError.
func (a *app) requireSession() (session.State, error) {
	st := a.session.State()
	if !st.Authenticated() {
		return st, &AuthRequiredError{Reason: st.Error}
	}
	return st, nil
}

// Close stops the session and releases the backend.
func (a *app) Close() {
	if a.session != nil {
		a.session.Stop()
	}
	if a.backend != nil {
		_ = a.backend.Close()
	}
}
