// Package googleauth obtains OAuth2 credentials for Google APIs and keeps them
// cached in per-scope token files on local disk.
//
// A token file is reused while its access token is valid, refreshed when it
// has expired but carries a refresh token, and otherwise replaced by running
// an interactive consent flow. Every new token is written back to the file.
package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var (
	// ErrScopeCount is returned when a request names anything other than
	// exactly one token file.
	ErrScopeCount = errors.New("exactly one token file and scope set must be requested per call")
)

// AuthorizeFunc runs an interactive authorization for cfg and returns the
// resulting token.
type AuthorizeFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// Authenticator issues credentials using the OAuth client described by a
// Google client secrets file.
type Authenticator struct {
	credentialFile string
	authorize      AuthorizeFunc
	logger         *zap.Logger
}

// Credential is a usable token together with the config that can refresh it.
type Credential struct {
	Config    *oauth2.Config
	Token     *oauth2.Token
	TokenFile string

	logger *zap.Logger
}

// New creates an Authenticator reading the OAuth client from credentialFile.
// Interactive authorization uses LocalServerFlow.
func New(credentialFile string, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		credentialFile: credentialFile,
		authorize:      LocalServerFlow,
		logger:         logger,
	}
}

// SetAuthorizeFunc replaces the interactive authorization flow.
func (a *Authenticator) SetAuthorizeFunc(fn AuthorizeFunc) {
	a.authorize = fn
}

// Authenticate returns a credential for the single tokenFile -> scopes entry
// in request.
func (a *Authenticator) Authenticate(ctx context.Context, request map[string][]string) (*Credential, error) {
	if len(request) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrScopeCount, len(request))
	}
	var (
		tokenFile string
		scopes    []string
	)
	for k, v := range request {
		tokenFile, scopes = k, v
	}

	cfg, err := a.oauthConfig(scopes)
	if err != nil {
		return nil, err
	}

	log := a.logger.With(zap.String("token_file", tokenFile))

	tok, err := readToken(tokenFile)
	switch {
	case err == nil && tok.Valid():
		log.Debug("using cached token")
	case err == nil && tok.RefreshToken != "":
		log.Info("refreshing expired token")
		tok, err = cfg.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, fmt.Errorf("refresh token: %w", err)
		}
		if err := writeToken(tokenFile, tok); err != nil {
			return nil, err
		}
	default:
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("discarding unreadable token file", zap.Error(err))
		}
		log.Info("running interactive authorization")
		tok, err = a.authorize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("authorize: %w", err)
		}
		if err := writeToken(tokenFile, tok); err != nil {
			return nil, err
		}
	}

	return &Credential{Config: cfg, Token: tok, TokenFile: tokenFile, logger: log}, nil
}

func (a *Authenticator) oauthConfig(scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(a.credentialFile)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}
	cfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credential file: %w", err)
	}
	return cfg, nil
}

// TokenSource returns a source that refreshes the credential on demand and
// writes every new token back to the credential's token file.
func (c *Credential) TokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(c.Token, &fileTokenSource{
		base:   c.Config.TokenSource(ctx, c.Token),
		path:   c.TokenFile,
		last:   c.Token.AccessToken,
		logger: c.logger,
	})
}

// Client returns an HTTP client authorized with the credential.
func (c *Credential) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, c.TokenSource(ctx))
}

type fileTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	path   string
	last   string
	logger *zap.Logger
}

func (s *fileTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := writeToken(s.path, tok); err != nil {
			// The token is still usable for this process.
			s.logger.Error("persist refreshed token", zap.Error(err))
		} else {
			s.last = tok.AccessToken
		}
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}
