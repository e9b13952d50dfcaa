package callback

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"shopauth/pkg/logging"
)

// DefaultTimeout is how long the CLI waits for the browser to come back.
const DefaultTimeout = 10 * time.Minute

//go:embed templates/callback.html
var callbackHTML string

var pageTemplate = template.Must(template.New("callback").Funcs(sprig.HtmlFuncMap()).Parse(callbackHTML))

type pageData struct {
	Status          string
	Title           string
	Message         string
	Detail          string
	Locale          string
	RedirectTo      string
	RedirectSeconds int
}

// Server is a one-shot local HTTP listener on the redirect URI. It runs the
// Handler for the first callback request, renders the result page and
// reports the outcome to Wait.
type Server struct {
	handler     *Handler
	redirectURL *url.URL
	listenAddr  string

	server    *http.Server
	listener  net.Listener
	outcomeCh chan Outcome
	errorCh   chan error
	once      sync.Once
	stopOnce  sync.Once

	mu          sync.Mutex
	callbackURL string
}

// NewServer creates a server for redirectURL, which must point at the
// loopback interface over plain http.
func NewServer(handler *Handler, redirectURL string) (*Server, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect URL %q: %w", redirectURL, err)
	}
	if u.Scheme != "http" || !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("redirect URL %q is not a local http address", redirectURL)
	}
	port := u.Port()
	if port == "" {
		port = "80"
	}
	if u.Path == "" {
		u.Path = "/"
	}
	return &Server{
		handler:     handler,
		redirectURL: u,
		listenAddr:  net.JoinHostPort("127.0.0.1", port),
		outcomeCh:   make(chan Outcome, 1),
		errorCh:     make(chan error, 1),
	}, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start begins listening. The server stops when ctx is cancelled. It
// returns the callback URL the server answers on.
func (s *Server) Start(ctx context.Context) (string, error) {
	listener, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return "", fmt.Errorf("failed to start callback server on %s: %w", s.listenAddr, err)
	}
	s.listener = listener

	u := *s.redirectURL
	u.Host = net.JoinHostPort(s.redirectURL.Hostname(), fmt.Sprint(listener.Addr().(*net.TCPAddr).Port))
	s.mu.Lock()
	s.callbackURL = u.String()
	s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+s.redirectURL.Path, s.handleCallback)
	if s.redirectURL.Path != "/" {
		mux.HandleFunc("GET /", s.handleHome)
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case s.errorCh <- err:
			default:
			}
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	logging.Debug("Callback", "Callback server listening on %s", listener.Addr())
	return u.String(), nil
}

// URL returns the callback URL, or "" before Start.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callbackURL
}

// Wait blocks until the callback was handled, the server failed or ctx is done.
func (s *Server) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-s.outcomeCh:
		return out, nil
	case err := <-s.errorCh:
		return Outcome{}, err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var handled bool
	s.once.Do(func() {
		handled = true
		s.processCallback(w, r)
	})
	if !handled {
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (s *Server) processCallback(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)

	callbackURL := s.URL()
	if r.URL.RawQuery != "" {
		callbackURL += "?" + r.URL.RawQuery
	}
	out := s.handler.Handle(r.Context(), callbackURL)

	s.render(w, out)

	select {
	case s.outcomeCh <- out:
	default:
	}

	// keep serving the home page the result page redirects to
	go func() {
		time.Sleep(out.RedirectAfter + time.Second)
		s.Stop()
	}()
}

func (s *Server) render(w http.ResponseWriter, out Outcome) {
	data := pageData{
		Status:          out.Status.String(),
		Message:         out.Message,
		RedirectTo:      out.RedirectTo,
		RedirectSeconds: int(out.RedirectAfter / time.Second),
		Locale:          strings.TrimPrefix(out.RedirectTo, "/"),
	}
	switch out.Status {
	case StatusSuccess:
		data.Title = "Authentication Successful!"
		if out.Account != nil {
			data.Detail = "Signed in as " + out.Account.Username
		}
	case StatusCancelled:
		data.Title = "Authentication Cancelled"
	default:
		data.Title = "Authentication Failed"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if out.Status != StatusSuccess {
		w.WriteHeader(http.StatusBadRequest)
	}
	if err := pageTemplate.Execute(w, data); err != nil {
		logging.Error("Callback", err, "Failed to render callback page")
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "You can close this window and return to the terminal.")
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.server != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.server.Shutdown(ctx)
		}
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}
