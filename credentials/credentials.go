// Package credentials restores the YouTube OAuth files from CI secrets and
// turns them into a refreshing token source.
package credentials

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"ai-course-pipeline/config"
)

// ErrNoCredentials means neither credential files nor the env refresh token were available.
var ErrNoCredentials = errors.New("no YouTube credentials: set YOUTUBE_CLIENT_SECRETS_B64 and YOUTUBE_CREDENTIALS_B64, or YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET and YOUTUBE_REFRESH_TOKEN")

var scopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeScope}

// Store knows where the OAuth files live and which secrets can recreate them.
type Store struct {
	paths   config.PathsConfig
	secrets config.Secrets
	logger  zerolog.Logger
}

func New(cfg *config.Config, logger zerolog.Logger) *Store {
	return &Store{
		paths:   cfg.Paths,
		secrets: cfg.Secrets,
		logger:  logger.With().Str("stage", "credentials").Logger(),
	}
}

// Restore writes client_secrets.json and credentials.json from their base64
// secrets. Unset secrets are skipped so local files keep working.
func (s *Store) Restore() error {
	files := []struct {
		env, b64, path string
	}{
		{"YOUTUBE_CLIENT_SECRETS_B64", s.secrets.ClientSecretsB64, s.paths.ClientSecrets},
		{"YOUTUBE_CREDENTIALS_B64", s.secrets.CredentialsB64, s.paths.Credentials},
	}
	for _, f := range files {
		if strings.TrimSpace(f.b64) == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(f.b64))
		if err != nil {
			return fmt.Errorf("decode %s: %w", f.env, err)
		}
		if dir := filepath.Dir(f.path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("create dir for %s: %w", f.path, err)
			}
		}
		if err := os.WriteFile(f.path, data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		s.logger.Info().Str("file", f.path).Msg("restored credential file")
	}
	return nil
}

// TokenSource prefers the restored files and falls back to the env refresh token.
func (s *Store) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	conf, tok, err := s.load()
	if err != nil {
		return nil, err
	}
	return conf.TokenSource(ctx, tok), nil
}

func (s *Store) load() (*oauth2.Config, *oauth2.Token, error) {
	authorized, err := readAuthorizedUser(s.paths.Credentials)
	switch {
	case err == nil:
		conf, confErr := s.configFor(authorized)
		if confErr != nil {
			return nil, nil, confErr
		}
		s.logger.Debug().Str("file", s.paths.Credentials).Msg("using stored credentials")
		return conf, authorized.token(), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, nil, err
	}

	if s.secrets.YouTubeClientID == "" || s.secrets.YouTubeClientSecret == "" || s.secrets.YouTubeRefreshToken == "" {
		return nil, nil, ErrNoCredentials
	}
	s.logger.Debug().Msg("using refresh token from environment")
	conf := &oauth2.Config{
		ClientID:     s.secrets.YouTubeClientID,
		ClientSecret: s.secrets.YouTubeClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       scopes,
	}
	// An expired token forces a refresh on first use.
	tok := &oauth2.Token{RefreshToken: s.secrets.YouTubeRefreshToken, Expiry: time.Now().Add(-time.Hour)}
	return conf, tok, nil
}

// configFor builds the OAuth client from client_secrets.json, or from the
// client id/secret embedded in the authorized-user file.
func (s *Store) configFor(au *authorizedUser) (*oauth2.Config, error) {
	data, err := os.ReadFile(s.paths.ClientSecrets)
	if err == nil {
		conf, err := google.ConfigFromJSON(data, scopes...)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", s.paths.ClientSecrets, err)
		}
		return conf, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", s.paths.ClientSecrets, err)
	}
	if au.ClientID == "" || au.ClientSecret == "" {
		return nil, fmt.Errorf("%s missing and %s has no client_id/client_secret", s.paths.ClientSecrets, s.paths.Credentials)
	}
	endpoint := google.Endpoint
	if au.TokenURI != "" {
		endpoint.TokenURL = au.TokenURI
	}
	return &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}, nil
}

// authorizedUser accepts both the oauth2 Token JSON and the authorized-user
// JSON written by Google's Python client ("token" instead of "access_token").
type authorizedUser struct {
	AccessToken  string `json:"access_token"`
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	TokenURI     string `json:"token_uri"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Expiry       string `json:"expiry"`
}

func readAuthorizedUser(path string) (*authorizedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var au authorizedUser
	if err := json.Unmarshal(data, &au); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if au.RefreshToken == "" {
		return nil, fmt.Errorf("%s has no refresh_token", path)
	}
	return &au, nil
}

func (au *authorizedUser) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  au.AccessToken,
		RefreshToken: au.RefreshToken,
		TokenType:    au.TokenType,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = au.Token
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, au.Expiry); err == nil {
			tok.Expiry = t
			break
		}
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(-time.Hour)
	}
	return tok
}
