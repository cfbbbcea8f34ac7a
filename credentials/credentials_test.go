package credentials

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ai-course-pipeline/config"
)

const clientSecretsJSON = `{"installed":{"client_id":"cid.apps.googleusercontent.com","client_secret":"csecret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func newStore(t *testing.T, secrets config.Secrets) *Store {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Paths: config.PathsConfig{
			ClientSecrets: filepath.Join(dir, "client_secrets.json"),
			Credentials:   filepath.Join(dir, "credentials.json"),
		},
		Secrets: secrets,
	}
	return New(cfg, zerolog.Nop())
}

func b64(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestRestore_WritesPrivateFiles(t *testing.T) {
	s := newStore(t, config.Secrets{
		ClientSecretsB64: b64(clientSecretsJSON),
		CredentialsB64:   b64(`{"token":"at","refresh_token":"rt"}`),
	})
	if err := s.Restore(); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{s.paths.ClientSecrets, s.paths.Credentials} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("%s mode = %v", path, info.Mode().Perm())
		}
	}
	got, _ := os.ReadFile(s.paths.ClientSecrets)
	if string(got) != clientSecretsJSON {
		t.Fatalf("client secrets = %q", got)
	}
}

func TestRestore_RejectsBadBase64(t *testing.T) {
	s := newStore(t, config.Secrets{CredentialsB64: "!!not base64!!"})
	if err := s.Restore(); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRestore_SkipsUnsetSecrets(t *testing.T) {
	s := newStore(t, config.Secrets{})
	if err := s.Restore(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.paths.Credentials); !os.IsNotExist(err) {
		t.Fatalf("credentials file should not exist: %v", err)
	}
}

func TestLoad_FromRestoredFiles(t *testing.T) {
	expiry := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	s := newStore(t, config.Secrets{
		ClientSecretsB64: b64(clientSecretsJSON),
		CredentialsB64:   b64(`{"token":"access-1","refresh_token":"refresh-1","expiry":"` + expiry + `"}`),
	})
	if err := s.Restore(); err != nil {
		t.Fatal(err)
	}

	conf, tok, err := s.load()
	if err != nil {
		t.Fatal(err)
	}
	if conf.ClientID != "cid.apps.googleusercontent.com" {
		t.Fatalf("client id = %q", conf.ClientID)
	}
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" {
		t.Fatalf("token = %+v", tok)
	}
	if !tok.Valid() {
		t.Fatal("unexpired token should be valid")
	}
}

func TestLoad_ClientFromAuthorizedUserFile(t *testing.T) {
	s := newStore(t, config.Secrets{
		CredentialsB64: b64(`{"refresh_token":"rt","client_id":"id2","client_secret":"sec2","token_uri":"https://example.test/token"}`),
	})
	if err := s.Restore(); err != nil {
		t.Fatal(err)
	}
	conf, tok, err := s.load()
	if err != nil {
		t.Fatal(err)
	}
	if conf.ClientID != "id2" || conf.Endpoint.TokenURL != "https://example.test/token" {
		t.Fatalf("conf = %+v", conf)
	}
	if tok.Valid() {
		t.Fatal("token without expiry should be treated as expired")
	}
}

func TestLoad_EnvFallback(t *testing.T) {
	s := newStore(t, config.Secrets{
		YouTubeClientID:     "id",
		YouTubeClientSecret: "secret",
		YouTubeRefreshToken: "refresh",
	})
	conf, tok, err := s.load()
	if err != nil {
		t.Fatal(err)
	}
	if conf.ClientID != "id" || tok.RefreshToken != "refresh" {
		t.Fatalf("conf=%+v tok=%+v", conf, tok)
	}
}

func TestLoad_NothingConfigured(t *testing.T) {
	s := newStore(t, config.Secrets{})
	if _, _, err := s.load(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("err = %v, want ErrNoCredentials", err)
	}
}
