package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
)

// Persisted keys.
const (
	KeyAuthenticated = "auth_authenticated"
	KeyUser          = "auth_user"
	KeyMethod        = "auth_method"
	KeyAccessToken   = "access_token"
	KeyIDToken       = "id_token"

	// KeyProviderCache holds the identity client's account and refresh token.
	KeyProviderCache = "idp_cache"
	// KeyPendingLogin holds the state of a login redirect in flight.
	KeyPendingLogin = "idp_pending"
)

// sessionKeys are the keys whose changes affect the signed-in state.
var sessionKeys = []string{KeyAuthenticated, KeyUser, KeyMethod, KeyAccessToken, KeyIDToken}

var (
	// ErrIncompleteSession is returned by Write when the account or tokens are missing.
	ErrIncompleteSession = errors.New("session requires an account and at least one token")

	// ErrNotAuthenticated is returned by UpdateTokens when nothing is stored.
	ErrNotAuthenticated = errors.New("no authenticated session stored")
)

// Session is the persisted sign-in state.
type Session struct {
	Tokens  *auth.TokenPair
	Account *auth.Account
	Method  auth.AuthMethod
}

// Change is delivered to subscribers when another context modified the
// stored session.
type Change struct {
	Origin string
	Keys   []string
}

// AffectsSession reports whether the change touched signed-in state rather
// than only identity provider bookkeeping.
func (c Change) AffectsSession() bool {
	return slices.ContainsFunc(c.Keys, func(k string) bool {
		return slices.Contains(sessionKeys, k)
	})
}

// Store is the only reader and writer of persisted auth state for one
// context. Every write is tagged with the store's origin so that it can
// ignore echoes of its own changes.
type Store struct {
	backend Backend
	origin  string

	// writeMu serializes read-modify-write sequences within this context.
	writeMu sync.Mutex

	// suppressed counts active BeginCallback sections.
	suppressed atomic.Int32
}

// Option configures a Store.
type Option func(*Store)

// WithOrigin sets the origin id instead of a generated one.
func WithOrigin(origin string) Option {
	return func(s *Store) {
		s.origin = origin
	}
}

// New creates a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		origin:  uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Origin identifies this context in change events.
func (s *Store) Origin() string { return s.origin }

// Write persists a complete session in one batch.
// SECURITY: token values are never logged.
func (s *Store) Write(ctx context.Context, tokens *auth.TokenPair, account *auth.Account, method auth.AuthMethod) error {
	if !account.Valid() || tokens.Empty() {
		return ErrIncompleteSession
	}

	user, err := json.Marshal(account.Profile())
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}

	set := map[string]string{
		KeyAuthenticated: "true",
		KeyUser:          string(user),
	}
	var del []string
	if method.Valid() {
		set[KeyMethod] = string(method)
	} else {
		del = append(del, KeyMethod)
	}
	set, del = tokenFields(tokens, set, del)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Apply(ctx, set, del, s.origin); err != nil {
		logging.Audit(logging.AuditEvent{Action: "session_store", Outcome: "failure", Account: account.Username, Detail: err.Error()})
		return fmt.Errorf("persist session: %w", err)
	}
	logging.Audit(logging.AuditEvent{Action: "session_store", Outcome: "success", Account: account.Username, Method: string(method)})
	return nil
}

// UpdateTokens replaces the token pair of the stored session.
func (s *Store) UpdateTokens(ctx context.Context, tokens *auth.TokenPair) error {
	if tokens.Empty() {
		return ErrIncompleteSession
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Checked and written in one step, so a concurrent logout elsewhere wins.
	want := map[string]string{KeyAuthenticated: "true"}
	set, del := tokenFields(tokens, map[string]string{}, nil)
	err := s.backend.ApplyIf(ctx, want, set, del, s.origin)
	if errors.Is(err, ErrPreconditionFailed) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("persist tokens: %w", err)
	}
	logging.Debug("TokenStore", "Stored renewed tokens")
	return nil
}

func tokenFields(tokens *auth.TokenPair, set map[string]string, del []string) (map[string]string, []string) {
	if tokens.AccessToken != "" {
		set[KeyAccessToken] = tokens.AccessToken
	} else {
		del = append(del, KeyAccessToken)
	}
	if tokens.IDToken != "" {
		set[KeyIDToken] = tokens.IDToken
	} else {
		del = append(del, KeyIDToken)
	}
	return set, del
}

// Read returns the stored session, or nil when none is stored. A corrupted
// account record, or one without tokens, is cleared and reported as absent.
func (s *Store) Read(ctx context.Context) (*Session, error) {
	values, err := s.backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if values[KeyAuthenticated] != "true" {
		return nil, nil
	}

	raw, ok := values[KeyUser]
	if !ok {
		return nil, nil
	}
	var profile auth.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil || profile.HomeAccountID == "" {
		logging.Warn("TokenStore", "Stored account is corrupted, clearing session")
		if clearErr := s.clearKeys(ctx, sessionKeys); clearErr != nil {
			logging.Error("TokenStore", clearErr, "Failed to clear corrupted session")
		}
		return nil, nil
	}

	tokens := &auth.TokenPair{
		AccessToken: values[KeyAccessToken],
		IDToken:     values[KeyIDToken],
	}
	if tokens.Empty() {
		logging.Warn("TokenStore", "Stored session has no tokens, clearing session")
		if clearErr := s.clearKeys(ctx, sessionKeys); clearErr != nil {
			logging.Error("TokenStore", clearErr, "Failed to clear incomplete session")
		}
		return nil, nil
	}

	method, _ := auth.ParseAuthMethod(values[KeyMethod])
	return &Session{
		Tokens:  tokens,
		Account: profile.Account(),
		Method:  method,
	}, nil
}

// Clear removes every persisted auth key, including the identity provider
// cache and any pending login.
// SECURITY: logged for the audit trail.
func (s *Store) Clear(ctx context.Context) error {
	keys := append(slices.Clone(sessionKeys), KeyProviderCache, KeyPendingLogin)
	if err := s.clearKeys(ctx, keys); err != nil {
		return err
	}
	logging.Audit(logging.AuditEvent{Action: "session_cleared", Outcome: "success"})
	return nil
}

func (s *Store) clearKeys(ctx context.Context, keys []string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Apply(ctx, nil, keys, s.origin); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// WriteMethod records the method chosen for a login before redirecting.
func (s *Store) WriteMethod(ctx context.Context, method auth.AuthMethod) error {
	if !method.Valid() {
		return fmt.Errorf("invalid auth method %q", method)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Apply(ctx, map[string]string{KeyMethod: string(method)}, nil, s.origin); err != nil {
		return fmt.Errorf("persist auth method: %w", err)
	}
	return nil
}

// Method returns the stored auth method, or MethodNone.
func (s *Store) Method(ctx context.Context) (auth.AuthMethod, error) {
	values, err := s.backend.Load(ctx)
	if err != nil {
		return auth.MethodNone, fmt.Errorf("load session: %w", err)
	}
	method, _ := auth.ParseAuthMethod(values[KeyMethod])
	return method, nil
}

// LoadJSON decodes the value stored under key into v. It returns false when
// the key is absent. Malformed values are deleted and reported as absent.
func (s *Store) LoadJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	values, err := s.backend.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	raw, ok := values[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		logging.Warn("TokenStore", "Stored %s is corrupted, clearing it", key)
		if clearErr := s.clearKeys(ctx, []string{key}); clearErr != nil {
			logging.Error("TokenStore", clearErr, "Failed to clear corrupted %s", key)
		}
		return false, nil
	}
	return true, nil
}

// SaveJSON stores v under key.
func (s *Store) SaveJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Apply(ctx, map[string]string{key: string(data)}, nil, s.origin); err != nil {
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.clearKeys(ctx, []string{key})
}

// BeginCallback suppresses change notifications while this context handles
// a login callback, so it does not react to its own in-flight writes
// arriving through another path. Calls nest; pair each with EndCallback.
func (s *Store) BeginCallback() {
	s.suppressed.Add(1)
}

// EndCallback ends a section started by BeginCallback.
func (s *Store) EndCallback() {
	if s.suppressed.Add(-1) < 0 {
		s.suppressed.Store(0)
	}
}

// InCallback reports whether notifications are currently suppressed.
func (s *Store) InCallback() bool {
	return s.suppressed.Load() > 0
}

// Subscribe delivers changes made by other contexts to fn. Changes made
// through this Store, and changes arriving during a callback section, are
// dropped.
func (s *Store) Subscribe(fn func(Change)) (func(), error) {
	return s.backend.Subscribe(func(ev Event) {
		if ev.Origin == s.origin {
			return
		}
		if s.InCallback() {
			logging.Debug("TokenStore", "Ignoring session change from %s during callback", ev.Origin)
			return
		}
		fn(Change{Origin: ev.Origin, Keys: ev.Keys})
	})
}
