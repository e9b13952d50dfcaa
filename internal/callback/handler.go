package callback

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"shopauth/internal/identity"
	"shopauth/internal/navigation"
	"shopauth/internal/session"
	"shopauth/pkg/auth"
	"shopauth/pkg/logging"
)

const (
	// SuccessRedirectDelay is how long the success page is shown.
	SuccessRedirectDelay = 2 * time.Second
	// FailureRedirectDelay is how long the error page is shown.
	FailureRedirectDelay = 3 * time.Second
)

// Status is the outcome shown on the callback page.
type Status int

const (
	StatusProcessing Status = iota
	StatusSuccess
	StatusCancelled
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusProcessing:
		return "processing"
	case StatusSuccess:
		return "success"
	case StatusCancelled:
		return "cancelled"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of handling one callback.
type Outcome struct {
	Status  Status
	Message string
	Account *auth.Account
	Method  auth.AuthMethod
	// RedirectTo is the locale-aware home route, e.g. "/en".
	RedirectTo    string
	RedirectAfter time.Duration
	Err           error
}

// Initializer is satisfied by *identity.Client.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Completer is satisfied by *session.Manager.
type Completer interface {
	CompleteLogin(ctx context.Context, callbackURL string) (session.State, error)
}

// Clearer is satisfied by *tokenstore.Store.
type Clearer interface {
	Clear(ctx context.Context) error
}

// Handler processes the URL the identity provider redirected back to.
type Handler struct {
	idp      Initializer
	sessions Completer
	store    Clearer
	locale   navigation.LocaleResolver
}

// NewHandler creates a Handler.
func NewHandler(idp Initializer, sessions Completer, store Clearer, locale navigation.LocaleResolver) *Handler {
	return &Handler{idp: idp, sessions: sessions, store: store, locale: locale}
}

// Handle completes the login carried by callbackURL. It always returns a
// terminal outcome; failures, including panics, become StatusError.
func (h *Handler) Handle(ctx context.Context, callbackURL string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("callback panicked: %v", r)
			logging.Error("Callback", err, "Unexpected failure while completing sign-in")
			out = h.failure(StatusError, "There was an error during authentication. Please try again.", err)
		}
	}()

	if err := h.idp.Initialize(ctx); err != nil {
		logging.Error("Callback", err, "Identity provider is not available")
		return h.failure(StatusError, identity.UserMessage(err), err)
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		return h.failure(StatusError, "There was an error during authentication. Please try again.", err)
	}

	if code := u.Query().Get("error"); code != "" {
		return h.providerError(ctx, callbackURL, identity.FromCallback(code, u.Query().Get("error_description")))
	}

	st, err := h.sessions.CompleteLogin(ctx, callbackURL)
	if err != nil {
		if errors.Is(err, session.ErrNoAccount) {
			logging.Warn("Callback", "Callback carried no login response and no account is cached")
			return h.failure(StatusError, "There was an error during authentication. Please try again.", err)
		}
		return h.failure(statusFor(err), identity.UserMessage(err), err)
	}
	if !st.Authenticated() {
		return h.failure(StatusError, "There was an error during authentication. Please try again.", session.ErrNoAccount)
	}

	logging.Info("Callback", "Signed in as %s (%s)", st.Account.Username, st.Method)
	return Outcome{
		Status:        StatusSuccess,
		Message:       "You have been successfully signed in.",
		Account:       st.Account,
		Method:        st.Method,
		RedirectTo:    h.home(),
		RedirectAfter: SuccessRedirectDelay,
	}
}

// providerError handles an explicit error parameter: the stored session is
// cleared before the session records the failed login.
func (h *Handler) providerError(ctx context.Context, callbackURL string, pe *identity.ProviderError) Outcome {
	if err := h.store.Clear(ctx); err != nil {
		logging.Error("Callback", err, "Failed to clear session after provider error")
	}
	if _, err := h.sessions.CompleteLogin(ctx, callbackURL); err != nil {
		logging.Debug("Callback", "Login failed: %v", err)
	}

	status := statusFor(pe)
	if status == StatusCancelled {
		logging.Info("Callback", "Sign-in was cancelled by the user")
	} else {
		logging.Warn("Callback", "Identity provider returned %s: %s", pe.Code, pe.Description)
	}
	return h.failure(status, identity.UserMessage(pe), pe)
}

func statusFor(err error) Status {
	if identity.IsKind(err, identity.KindUserCancelled) {
		return StatusCancelled
	}
	return StatusError
}

func (h *Handler) failure(status Status, message string, err error) Outcome {
	return Outcome{
		Status:        status,
		Message:       message,
		RedirectTo:    h.home(),
		RedirectAfter: FailureRedirectDelay,
		Err:           err,
	}
}

func (h *Handler) home() string {
	if h.locale == nil {
		return navigation.HomePath("")
	}
	return navigation.HomePath(h.locale.CurrentLocale())
}
