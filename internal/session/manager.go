package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shopauth/internal/identity"
	"shopauth/internal/tokenstore"
	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
)

// DefaultReadyTimeout bounds how long Refresh waits for the identity
// provider to become ready before reporting a transient failure.
const DefaultReadyTimeout = 10 * time.Second

var (
	// ErrNotAuthenticated is returned by operations that need a signed-in account.
	ErrNotAuthenticated = errors.New("session is not authenticated")

	// ErrNoAccount is returned when a login callback yields no account.
	ErrNoAccount = errors.New("no account was returned by the identity provider")
)

// IdentityProvider is the part of *identity.Client the session uses.
type IdentityProvider interface {
	Initialize(ctx context.Context) error
	Ready() <-chan struct{}
	SupportsMethod(method auth.AuthMethod) bool
	LoginRedirect(ctx context.Context, req identity.LoginRequest) error
	CompleteRedirect(ctx context.Context, callbackURL string) (*identity.AuthResult, error)
	Accounts(ctx context.Context) ([]*auth.Account, error)
	AcquireTokenSilent(ctx context.Context, req identity.SilentRequest) (*identity.AuthResult, error)
	LogoutRedirect(ctx context.Context, req identity.LogoutRequest) error
}

// Manager owns the session state of one context. Several Managers whose
// stores share a backend stay consistent through change notifications.
type Manager struct {
	idp          IdentityProvider
	store        *tokenstore.Store
	now          func() time.Time
	readyTimeout time.Duration

	mu          sync.RWMutex
	state       State
	started     bool
	subs        map[int]func(State)
	nextSub     int
	unsubscribe func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithReadyTimeout overrides DefaultReadyTimeout.
func WithReadyTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.readyTimeout = d
	}
}

// New creates a Manager in StatusAuthenticating. Call Start to settle it.
func New(idp IdentityProvider, store *tokenstore.Store, opts ...Option) *Manager {
	m := &Manager{
		idp:          idp,
		store:        store,
		now:          time.Now,
		readyTimeout: DefaultReadyTimeout,
		state:        State{Status: StatusAuthenticating},
		subs:         make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AccessToken returns the bearer token of the current session, or "".
func (m *Manager) AccessToken() string {
	return m.State().AccessToken()
}

// Subscribe registers fn for every state change until cancel is called.
// fn runs on the goroutine that caused the change and must not block.
func (m *Manager) Subscribe(fn func(State)) (cancel func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

// apply feeds ev through transition, stores the result and notifies
// subscribers when the state changed.
func (m *Manager) apply(ev event) (State, error) {
	m.mu.Lock()
	prev := m.state
	next, err := transition(prev, ev)
	if err != nil {
		m.mu.Unlock()
		logging.Debug("Session", "Rejected %s while %s", ev.kind, prev.Status)
		return prev, err
	}
	m.state = next
	var fns []func(State)
	if !next.equal(prev) {
		fns = make([]func(State), 0, len(m.subs))
		for _, fn := range m.subs {
			fns = append(fns, fn)
		}
	}
	m.mu.Unlock()

	if len(fns) > 0 {
		logging.Debug("Session", "%s: %s -> %s", ev.kind, prev.Status, next.Status)
	}
	for _, fn := range fns {
		fn(next)
	}
	return next, nil
}

// Start initializes the identity provider, rehydrates the stored session
// and begins following changes made by other contexts. A stored session
// whose access token is still valid is used as is; otherwise one silent
// renewal is attempted.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	if err := m.idp.Initialize(ctx); err != nil {
		m.markNotStarted()
		_, _ = m.apply(event{kind: evFailed, message: identity.UserMessage(err)})
		return err
	}

	ev, err := m.rehydrate(ctx)
	if err != nil {
		m.markNotStarted()
		_, _ = m.apply(event{kind: evFailed, message: "Your saved session could not be loaded."})
		return err
	}
	if _, err := m.apply(ev); err != nil {
		return err
	}

	unsubscribe, err := m.store.Subscribe(m.onStoreChange)
	if err != nil {
		return fmt.Errorf("subscribe to session changes: %w", err)
	}
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	logging.Info("Session", "Session started: %s", m.State().Status)
	return nil
}

func (m *Manager) markNotStarted() {
	m.mu.Lock()
	m.started = false
	m.mu.Unlock()
}

func (m *Manager) rehydrate(ctx context.Context) (event, error) {
	stored, err := m.store.Read(ctx)
	if err != nil {
		return event{}, err
	}
	if stored == nil {
		return event{kind: evInitialized}, nil
	}

	restored := event{kind: evInitialized, account: stored.Account, tokens: stored.Tokens, method: stored.Method}
	if stored.Tokens.Valid(m.now()) {
		logging.Debug("Session", "Restored session for %s", stored.Account.Username)
		return restored, nil
	}

	result, err := m.idp.AcquireTokenSilent(ctx, identity.SilentRequest{Account: stored.Account})
	if err != nil {
		pe := identity.Classify(err)
		if requiresInteraction(pe.Kind) {
			logging.Info("Session", "Stored session expired, signing out: %s", pe.Kind)
			if err := m.store.Clear(ctx); err != nil {
				return event{}, err
			}
			return event{kind: evInitialized}, nil
		}
		// keep the stored session; the API client renews on first use
		logging.Warn("Session", "Could not renew stored session: %v", pe)
		return restored, nil
	}

	if err := m.store.UpdateTokens(ctx, result.Tokens); err != nil {
		return event{}, err
	}
	restored.tokens = result.Tokens
	return restored, nil
}

func requiresInteraction(kind identity.Kind) bool {
	return kind == identity.KindInteractionRequired || kind == identity.KindConsentRequired
}

// Stop ends the cross-context subscription.
func (m *Manager) Stop() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.started = false
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Login persists the chosen method and redirects to the identity provider.
// On success the session stays StatusAuthenticating until the callback is
// completed, here or in another context.
func (m *Manager) Login(ctx context.Context, method auth.AuthMethod) error {
	if method == auth.MethodNone {
		method = auth.MethodVipps
	}
	if !method.Valid() {
		return fmt.Errorf("unknown auth method %q", method)
	}
	if m.State().Authenticated() {
		return &TransitionError{From: StatusAuthenticated, Event: evLoginStarted.String()}
	}

	if !m.isReady() {
		_, _ = m.apply(event{kind: evLoginFailed, message: identity.UserMessage(identity.ErrNotInitialized)})
		return identity.ErrNotInitialized
	}
	if !m.idp.SupportsMethod(method) {
		err := fmt.Errorf("%w: %s", identity.ErrMissingAuthority, method)
		_, _ = m.apply(event{kind: evLoginFailed, message: identity.UserMessage(err)})
		return err
	}

	if _, err := m.apply(event{kind: evLoginStarted, method: method}); err != nil {
		return err
	}

	if err := m.store.WriteMethod(ctx, method); err != nil {
		_, _ = m.apply(event{kind: evLoginFailed, message: "Could not start sign-in."})
		return err
	}

	if err := m.idp.LoginRedirect(ctx, identity.LoginRequest{Method: method}); err != nil {
		_, _ = m.apply(event{kind: evLoginFailed, message: identity.UserMessage(err)})
		logging.Audit(logging.AuditEvent{Action: "login_redirect", Outcome: "failure", Method: string(method), Detail: err.Error()})
		return err
	}
	logging.Audit(logging.AuditEvent{Action: "login_redirect", Outcome: "success", Method: string(method)})
	return nil
}

func (m *Manager) isReady() bool {
	select {
	case <-m.idp.Ready():
		return true
	default:
		return false
	}
}

// waitReady blocks until the identity provider is ready, ctx is done or
// the ready timeout passes.
func (m *Manager) waitReady(ctx context.Context) error {
	timer := time.NewTimer(m.readyTimeout)
	defer timer.Stop()
	select {
	case <-m.idp.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return &identity.ProviderError{Kind: identity.KindEndpointsResolution, Err: identity.ErrNotInitialized}
	}
}

// CompleteLogin finishes a login from the URL the provider redirected to.
// When the URL carries no response, an account already cached by the
// provider is used instead. Change notifications are suppressed while the
// callback is processed.
func (m *Manager) CompleteLogin(ctx context.Context, callbackURL string) (State, error) {
	m.store.BeginCallback()
	defer m.store.EndCallback()

	result, err := m.idp.CompleteRedirect(ctx, callbackURL)
	if err != nil {
		return m.failLogin(err)
	}

	if result == nil {
		result, err = m.cachedAccountResult(ctx)
		if err != nil {
			return m.failLogin(err)
		}
	}
	if result == nil || !result.Account.Valid() {
		return m.failLogin(ErrNoAccount)
	}

	method := result.Method
	if !method.Valid() {
		method, _ = m.store.Method(ctx)
	}

	if err := m.store.Write(ctx, result.Tokens, result.Account, method); err != nil {
		return m.failLogin(err)
	}

	st, err := m.apply(event{kind: evLoginCompleted, account: result.Account, tokens: result.Tokens, method: method})
	if err != nil {
		return st, err
	}
	logging.Audit(logging.AuditEvent{Action: "login", Outcome: "success", Account: result.Account.Username, Method: string(method)})
	return st, nil
}

func (m *Manager) cachedAccountResult(ctx context.Context) (*identity.AuthResult, error) {
	accounts, err := m.idp.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return nil, err
	}
	return m.idp.AcquireTokenSilent(ctx, identity.SilentRequest{Account: accounts[0]})
}

func (m *Manager) failLogin(err error) (State, error) {
	message := identity.UserMessage(err)
	if errors.Is(err, ErrNoAccount) {
		message = "Sign-in did not complete. Please try again."
	}
	st, _ := m.apply(event{kind: evLoginFailed, message: message})
	logging.Audit(logging.AuditEvent{Action: "login", Outcome: "failure", Detail: err.Error()})
	return st, err
}

// Refresh renews the tokens of the current session. When the provider
// requires interaction the session is cleared and becomes anonymous.
// Transient failures leave the session and the store untouched.
func (m *Manager) Refresh(ctx context.Context, force bool) (*auth.TokenPair, error) {
	current := m.State()
	if !current.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	if err := m.waitReady(ctx); err != nil {
		_, _ = m.apply(event{kind: evTransientError})
		return nil, err
	}

	result, err := m.idp.AcquireTokenSilent(ctx, identity.SilentRequest{Account: current.Account, ForceRefresh: force})
	if err != nil {
		pe := identity.Classify(err)
		switch {
		case requiresInteraction(pe.Kind):
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				logging.Error("Session", clearErr, "Failed to clear session after %s", pe.Kind)
			}
			_, _ = m.apply(event{kind: evInteractionRequired, message: identity.UserMessage(pe)})
			logging.Audit(logging.AuditEvent{Action: "token_refresh", Outcome: "interaction_required", Account: current.Account.Username})
		case pe.Kind.Transient():
			_, _ = m.apply(event{kind: evTransientError})
			logging.Warn("Session", "Token renewal failed, will retry later: %v", pe)
		default:
			logging.Error("Session", pe, "Token renewal failed")
		}
		return nil, pe
	}

	if !result.FromCache || !sameTokens(result.Tokens, current.Tokens) {
		if err := m.store.UpdateTokens(ctx, result.Tokens); err != nil {
			return nil, err
		}
	}
	if _, err := m.apply(event{kind: evRefreshed, tokens: result.Tokens}); err != nil {
		return nil, err
	}
	if !result.FromCache {
		logging.Audit(logging.AuditEvent{Action: "token_refresh", Outcome: "success", Account: current.Account.Username})
	}
	return result.Tokens, nil
}

// Logout clears the session locally, then redirects to the provider's end
// session endpoint. The local session stays cleared even when the
// redirect fails.
func (m *Manager) Logout(ctx context.Context) error {
	prev := m.State()

	clearErr := m.store.Clear(ctx)
	if clearErr != nil {
		logging.Error("Session", clearErr, "Failed to clear stored session")
	}
	_, _ = m.apply(event{kind: evLoggedOut})

	var username string
	if prev.Account != nil {
		username = prev.Account.Username
	}
	logging.Audit(logging.AuditEvent{Action: "logout", Outcome: "success", Account: username})

	if err := m.idp.LogoutRedirect(ctx, identity.LogoutRequest{Account: prev.Account}); err != nil {
		logging.Warn("Session", "Provider logout failed, local session is cleared: %v", err)
		return errors.Join(clearErr, fmt.Errorf("provider logout: %w", err))
	}
	return clearErr
}

// onStoreChange re-derives the session from the store after another
// context changed it.
func (m *Manager) onStoreChange(change tokenstore.Change) {
	if !change.AffectsSession() {
		return
	}

	stored, err := m.store.Read(context.Background())
	if err != nil {
		logging.Error("Session", err, "Failed to read session after change from %s", change.Origin)
		return
	}

	if stored != nil {
		_, _ = m.apply(event{kind: evRemoteAuthenticated, account: stored.Account, tokens: stored.Tokens, method: stored.Method})
		return
	}
	if m.State().Authenticated() {
		logging.Info("Session", "Signed out by another context")
		_, _ = m.apply(event{kind: evRemoteLoggedOut})
	}
}
