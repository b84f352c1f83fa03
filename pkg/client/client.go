// Package client builds OAuth2 HTTP clients for the Gmail reader and the
// Sheets writer.
//
// The first run opens a browser for Google sign-in and catches the redirect on
// a local callback server. The resulting token is kept on disk and rewritten
// whenever oauth2 refreshes it.
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// TokenFile is the default path of the stored OAuth token.
	TokenFile = "data/token.json"
	// DefaultCallbackAddr is where the sign-in redirect is received.
	DefaultCallbackAddr = "localhost:8085"

	callbackPath = "/callback"
)

// Config controls where credentials are kept and how sign-in runs.
type Config struct {
	// TokenFile defaults to TokenFile.
	TokenFile string
	// CallbackAddr defaults to DefaultCallbackAddr.
	CallbackAddr string
	// Timeout bounds the browser sign-in. Defaults to 5 minutes.
	Timeout time.Duration
	// Prompt receives sign-in instructions. Defaults to os.Stderr.
	Prompt io.Writer
}

func (c *Config) applyDefaults() {
	if c.TokenFile == "" {
		c.TokenFile = TokenFile
	}
	if c.CallbackAddr == "" {
		c.CallbackAddr = DefaultCallbackAddr
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.Prompt == nil {
		c.Prompt = os.Stderr
	}
}

// New creates an HTTP client from the client secret at secretFilePath using
// the default Config.
func New(secretFilePath string, scope ...string) (*http.Client, error) {
	b, err := os.ReadFile(secretFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	return NewFromJSON(context.Background(), b, Config{}, scope...)
}

// NewFromJSON creates an HTTP client from client secret JSON content.
func NewFromJSON(ctx context.Context, secretJSON []byte, cfg Config, scope ...string) (*http.Client, error) {
	cfg.applyDefaults()

	oauthCfg, err := google.ConfigFromJSON(secretJSON, scope...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}

	tok, err := loadToken(cfg.TokenFile)
	if err != nil {
		slog.Info("no stored token, starting browser sign-in", "reason", err)
		tok, err = signIn(ctx, oauthCfg, cfg)
		if err != nil {
			return nil, err
		}
		if err := saveToken(cfg.TokenFile, tok); err != nil {
			slog.Error("failed to save token", "error", err)
		}
	}

	src := &savingTokenSource{
		base: oauthCfg.TokenSource(ctx, tok),
		path: cfg.TokenFile,
		last: tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// savingTokenSource writes a token back to disk whenever its access token
// changes.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := saveToken(s.path, tok); err != nil {
			slog.Warn("failed to persist refreshed token", "error", err)
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

func signIn(ctx context.Context, oauthCfg *oauth2.Config, cfg Config) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", cfg.CallbackAddr)
	if err != nil {
		return nil, fmt.Errorf("callback address %s unavailable: %w", cfg.CallbackAddr, err)
	}

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	mux := http.NewServeMux()
	mux.Handle(callbackPath, callbackHandler(state, codes, errs))
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sendErr(errs, err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("error shutting down callback server", "error", err)
		}
	}()

	oauthCfg.RedirectURL = "http://" + listener.Addr().String() + callbackPath
	authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline)

	fmt.Fprintf(cfg.Prompt, "\nOpening browser for Google sign-in...\n")
	fmt.Fprintf(cfg.Prompt, "If nothing opens, visit this URL:\n%s\n\n", authURL)
	if err := openBrowser(ctx, authURL); err != nil {
		slog.Warn("failed to open browser automatically", "error", err)
	}

	select {
	case code := <-codes:
		tok, err := oauthCfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
		fmt.Fprintln(cfg.Prompt, "Signed in.")
		return tok, nil
	case err := <-errs:
		return nil, fmt.Errorf("oauth callback: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for sign-in: %w", ctx.Err())
	}
}

// callbackHandler receives the provider redirect. The first valid code goes
// to codes; a state mismatch or provider error goes to errs.
func callbackHandler(state string, codes chan<- string, errs chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		if q.Get("state") != state {
			sendErr(errs, errors.New("invalid state parameter"))
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			sendErr(errs, fmt.Errorf("%s: %s", msg, q.Get("error_description")))
			http.Error(w, "Sign-in failed: "+msg, http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			sendErr(errs, errors.New("no authorization code received"))
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>momosync</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Signed in</h1><p>You can close this window and return to the terminal.</p>
</body></html>`)

		select {
		case codes <- code:
		default:
		}
	})
}

func sendErr(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds no credentials")
	}
	return tok, nil
}

func saveToken(path string, token *oauth2.Token) error {
	slog.Debug("saving token", "path", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}
