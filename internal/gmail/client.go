package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// redirectTimeout bounds the wait for the browser redirect before falling
// back to a pasted code.
const redirectTimeout = 120 * time.Second

// Credentials locates the OAuth client secrets and the cached token.
type Credentials struct {
	ClientSecretPath string
	TokenPath        string
}

// NewService returns a Gmail service authorized with the cached token. The
// token is refreshed when it expires and every refreshed token is written
// back to TokenPath. When there is no usable token the interactive consent
// flow runs on the terminal.
func NewService(ctx context.Context, creds Credentials, log *logrus.Entry) (*gmailv1.Service, error) {
	b, err := os.ReadFile(creds.ClientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", creds.ClientSecretPath, err)
	}
	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	ts, err := tokenSource(ctx, cfg, creds.TokenPath, log)
	if err != nil {
		return nil, err
	}
	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, ts)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func tokenSource(ctx context.Context, cfg *oauth2.Config, tokenPath string, log *logrus.Entry) (oauth2.TokenSource, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("pkg", "gmail")
	if tok, err := readToken(tokenPath); err == nil {
		ts := &savingTokenSource{
			base: cfg.TokenSource(ctx, tok),
			path: tokenPath,
			last: tok.AccessToken,
			log:  log,
		}
		_, err := ts.Token()
		if err == nil {
			return ts, nil
		}
		log.WithError(err).Warn("Cached token cannot be refreshed, starting consent flow")
		_ = os.Remove(tokenPath)
	}

	tok, err := tokenFromWeb(ctx, cfg, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokenPath, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	return &savingTokenSource{
		base: cfg.TokenSource(ctx, tok),
		path: tokenPath,
		last: tok.AccessToken,
		log:  log,
	}, nil
}

// savingTokenSource persists a token whenever the underlying source hands
// out a new access token.
type savingTokenSource struct {
	base oauth2.TokenSource
	path string
	log  *logrus.Entry

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
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			s.log.WithError(err).Warn("Failed to persist refreshed token")
		} else {
			s.log.Debug("Persisted refreshed token")
		}
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tokenFromWeb runs a loopback HTTP server to capture the auth code. If that
// fails or times out, it falls back to a pasted code or redirect URL.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	code, err := loopbackCode(ctx, cfg, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if err != nil {
		fmt.Fprintf(out, "%v; falling back to manual paste.\n", err)
		code, err = pastedCode(cfg, in, out)
		if err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(out, "Exchanging code for token…")
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	fmt.Fprintln(out, "Authentication successful.")
	return tok, nil
}

func loopbackCode(ctx context.Context, cfg *oauth2.Config, out io.Writer) (string, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen on loopback: %w", err)
	}
	redirect := fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)

	codeCh := make(chan string, 1)
	mux := http.NewServeMux()
	srv := &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authentication complete. You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
	go func() { _ = srv.Serve(ln) }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	// The redirect URL must match between AuthCodeURL and Exchange, so it is
	// left in place once a code arrives.
	oldRedirect := cfg.RedirectURL
	cfg.RedirectURL = redirect

	fmt.Fprintln(out, "Open this URL in your browser to authorize access to your mailbox:")
	fmt.Fprintln(out, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	fmt.Fprintf(out, "Waiting for redirect on %s …\n", redirect)

	select {
	case <-ctx.Done():
		cfg.RedirectURL = oldRedirect
		return "", ctx.Err()
	case code := <-codeCh:
		return strings.TrimSpace(code), nil
	case <-time.After(redirectTimeout):
		cfg.RedirectURL = oldRedirect
		return "", errors.New("timeout waiting for redirect")
	}
}

func pastedCode(cfg *oauth2.Config, in io.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "Open this URL in your browser to authorize access to your mailbox:")
	fmt.Fprintln(out, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Paste the AUTH CODE itself or the FULL redirect URL here, then press Enter.")
	fmt.Fprint(out, "> ")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", fmt.Errorf("read auth code: %w", err)
		}
		return "", errors.New("empty authorization code")
	}
	return parseAuthInput(sc.Text())
}

// parseAuthInput accepts either a bare code or the redirect URL carrying it.
func parseAuthInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := strings.TrimSpace(u.Query().Get("code"))
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
