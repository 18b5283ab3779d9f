// Package auth signs the user in with Google and keeps the session on disk.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"dcc/internal/config"
)

const (
	// OAuth scope for Cloud Firestore
	datastoreScope = "https://www.googleapis.com/auth/datastore"

	// OAuth callback timeout
	oauthCallbackTimeout = 5 * time.Minute

	// Token exchange timeout
	tokenExchangeTimeout = 30 * time.Second

	// Starting port for OAuth callback server
	oauthStartPort = 8085

	// Max port attempts
	oauthMaxPortAttempts = 5

	// validateTimeout bounds the refresh attempt in Valid.
	validateTimeout = 10 * time.Second
)

// Scopes are requested at sign-in.
var Scopes = []string{
	datastoreScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
	oauth2api.OpenIDScope,
}

var (
	// ErrNoOAuthClient means oauth_client.json is missing from the config directory.
	ErrNoOAuthClient = errors.New("oauth_client.json not found")

	// ErrNotSignedIn means there is no stored session.
	ErrNotSignedIn = errors.New("not logged in")
)

// User is the signed-in identity.
type User struct {
	ID    string `json:"uid"`
	Name  string `json:"displayName,omitempty"`
	Email string `json:"email,omitempty"`
}

// LocalUser owns the tasks of the offline sqlite store when nobody is signed in.
var LocalUser = User{ID: "local", Name: "Local user"}

// ProfileFunc looks up the profile of the account behind ts.
type ProfileFunc func(ctx context.Context, ts oauth2.TokenSource) (User, error)

// Manager owns the stored session: the OAuth token and the user profile.
type Manager struct {
	cfg     *config.Config
	log     *log.Logger
	profile ProfileFunc

	// notifying serialises subscriber deliveries.
	notifying sync.Mutex

	mu     sync.Mutex
	subs   map[int]func(*User)
	nextID int
}

// NewManager creates a Manager storing its session under cfg.Dir.
// A nil logger discards output.
func NewManager(cfg *config.Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{
		cfg:     cfg,
		log:     logger,
		profile: fetchUserinfo,
		subs:    make(map[int]func(*User)),
	}
}

// SetProfileFunc replaces the profile lookup (for testing).
func (m *Manager) SetProfileFunc(fn ProfileFunc) {
	m.profile = fn
}

// OAuthConfig loads the OAuth client credentials.
func (m *Manager) OAuthConfig() (*oauth2.Config, error) {
	if !m.cfg.HasOAuthClient() {
		return nil, ErrNoOAuthClient
	}
	clientJSON, err := os.ReadFile(m.cfg.OAuthClientPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read oauth_client.json: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(clientJSON, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid oauth_client.json: %w", err)
	}
	return oauthConfig, nil
}

// SignIn runs the browser loopback flow with PKCE. The URL to open is
// written to prompt. On success the token and profile are saved with mode
// 0600 and subscribers are notified.
func (m *Manager) SignIn(ctx context.Context, prompt io.Writer) (User, error) {
	oauthConfig, err := m.OAuthConfig()
	if err != nil {
		return User{}, err
	}

	port, listener, err := findAvailablePort()
	if err != nil {
		return User{}, errors.New("could not bind to local port for OAuth callback")
	}
	defer listener.Close()

	oauthConfig.RedirectURL = fmt.Sprintf("http://localhost:%d/callback", port)

	verifier := oauth2.GenerateVerifier()
	state := oauth2.GenerateVerifier()

	authURL := oauthConfig.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintln(prompt, "Open this URL in your browser:")
	fmt.Fprintln(prompt, authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			sendErr(errCh, errors.New("oauth state mismatch"))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code in callback", http.StatusBadRequest)
			sendErr(errCh, fmt.Errorf("no code in callback (error=%q)", q.Get("error")))
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body><h1>Signed in to Dad's Command Center</h1><p>You may close this window.</p></body></html>")
		select {
		case codeCh <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			sendErr(errCh, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return User{}, err
	case <-time.After(oauthCallbackTimeout):
		return User{}, errors.New("oauth callback timed out")
	case <-ctx.Done():
		return User{}, errors.New("cancelled")
	}

	exchangeCtx, cancelExchange := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancelExchange()

	token, err := oauthConfig.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return User{}, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	user, err := m.profile(exchangeCtx, oauthConfig.TokenSource(exchangeCtx, token))
	if err != nil {
		return User{}, fmt.Errorf("failed to read user profile: %w", err)
	}
	if user.ID == "" {
		return User{}, errors.New("user profile has no id")
	}

	if err := m.cfg.EnsureDir(); err != nil {
		return User{}, fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeJSON(m.cfg.TokenPath(), token); err != nil {
		return User{}, fmt.Errorf("failed to save token: %w", err)
	}
	if err := writeJSON(m.cfg.UserPath(), user); err != nil {
		return User{}, fmt.Errorf("failed to save user: %w", err)
	}

	m.log.Printf("signed in as %s (%s)", user.ID, user.Email)
	m.notify(&user)
	return user, nil
}

// SignOut removes the stored session. Signing out while signed out is a no-op.
// The OAuth client credentials are kept.
func (m *Manager) SignOut() error {
	_, signedIn, _ := m.Current()

	if err := m.cfg.RemoveToken(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove token: %w", err)
	}
	if err := m.cfg.RemoveUser(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove user: %w", err)
	}

	if signedIn {
		m.log.Printf("signed out")
		m.notify(nil)
	}
	return nil
}

// Current returns the stored user. ok is false when nobody is signed in.
func (m *Manager) Current() (User, bool, error) {
	if !m.cfg.HasToken() {
		return User{}, false, nil
	}
	data, err := os.ReadFile(m.cfg.UserPath())
	if os.IsNotExist(err) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("failed to read user.json: %w", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return User{}, false, fmt.Errorf("invalid user.json: %w", err)
	}
	if user.ID == "" {
		return User{}, false, errors.New("invalid user.json: missing uid")
	}
	return user, true, nil
}

// Subscribe calls fn with the current user (nil when signed out) right away
// and again after every sign-in or sign-out made through this Manager.
// The initial value is always delivered first. fn must not call SignIn,
// SignOut or Subscribe.
func (m *Manager) Subscribe(fn func(*User)) (cancel func()) {
	m.notifying.Lock()
	defer m.notifying.Unlock()

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()

	if user, ok, err := m.Current(); err == nil && ok {
		fn(&user)
	} else {
		fn(nil)
	}

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(user *User) {
	m.notifying.Lock()
	defer m.notifying.Unlock()

	m.mu.Lock()
	subs := make([]func(*User), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		if user == nil {
			fn(nil)
			continue
		}
		u := *user
		fn(&u)
	}
}

// TokenSource returns an auto-refreshing token source for the stored session.
func (m *Manager) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	oauthConfig, err := m.OAuthConfig()
	if err != nil {
		return nil, err
	}
	token, err := m.loadToken()
	if err != nil {
		return nil, err
	}
	return oauthConfig.TokenSource(ctx, token), nil
}

// Valid reports whether the stored token is parseable, carries a refresh
// token, and can still produce an access token.
func (m *Manager) Valid(ctx context.Context) bool {
	token, err := m.loadToken()
	if err != nil || token.RefreshToken == "" {
		return false
	}
	oauthConfig, err := m.OAuthConfig()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	_, err = oauthConfig.TokenSource(ctx, token).Token()
	if err != nil {
		m.log.Printf("stored token rejected: %v", err)
	}
	return err == nil
}

func (m *Manager) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(m.cfg.TokenPath())
	if os.IsNotExist(err) {
		return nil, ErrNotSignedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token.json: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token.json: %w", err)
	}
	return &token, nil
}

// fetchUserinfo reads the Google account profile.
func fetchUserinfo(ctx context.Context, ts oauth2.TokenSource) (User, error) {
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return User{}, err
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return User{}, err
	}
	return User{ID: info.Id, Name: info.Name, Email: info.Email}, nil
}

// findAvailablePort tries to find an available port starting from oauthStartPort.
func findAvailablePort() (int, net.Listener, error) {
	for i := 0; i < oauthMaxPortAttempts; i++ {
		port := oauthStartPort + i
		addr := fmt.Sprintf("localhost:%d", port)
		listener, err := net.Listen("tcp", addr)
		if err == nil {
			return port, listener, nil
		}
	}
	return 0, nil, fmt.Errorf("no available port found")
}

func sendErr(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

// writeJSON saves v to path with mode 0600.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
