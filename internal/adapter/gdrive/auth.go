package gdrive

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/Ning0612/Syncenum/internal/domain"
)

// DefaultTokenFile is the token file name under the user config dir
const DefaultTokenFile = "gdrive-token.json"

// Authenticator reads the Drive token of an account from disk and writes
// refreshed tokens back to it. Tokens are issued out of band.
type Authenticator struct {
	config    *oauth2.Config
	tokenPath string

	mu sync.Mutex
}

// NewAuthenticator creates an authenticator for the token stored at
// tokenPath (default: <user config dir>/syncenum/gdrive-token.json)
func NewAuthenticator(clientID, clientSecret, tokenPath string) *Authenticator {
	if tokenPath == "" {
		tokenPath = DefaultTokenFile
		if dir, err := os.UserConfigDir(); err == nil {
			tokenPath = filepath.Join(dir, "syncenum", DefaultTokenFile)
		}
	}

	return &Authenticator{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			// listing only reads metadata
			Scopes:   []string{drive.DriveMetadataReadonlyScope},
			Endpoint: google.Endpoint,
		},
		tokenPath: tokenPath,
	}
}

// Token returns a valid token, refreshing and persisting it when expired.
// Any failure is reported as domain.ErrPermissionDenied.
func (a *Authenticator) Token(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stored, err := a.load()
	if err != nil {
		return nil, fmt.Errorf("%w: no usable Drive token at %s: %v", domain.ErrPermissionDenied, a.tokenPath, err)
	}
	if stored.Valid() {
		return stored, nil
	}
	if stored.RefreshToken == "" {
		return nil, fmt.Errorf("%w: Drive token at %s expired without refresh token", domain.ErrPermissionDenied, a.tokenPath)
	}

	fresh, err := a.config.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh Drive token: %v", domain.ErrPermissionDenied, err)
	}
	if err := a.save(fresh); err != nil {
		return nil, fmt.Errorf("failed to save refreshed token: %w", err)
	}
	return fresh, nil
}

// TokenSource returns a source that starts from initial and persists
// every token the oauth2 package refreshes for a long-running client
func (a *Authenticator) TokenSource(ctx context.Context, initial *oauth2.Token) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(initial, &persistingSource{
		auth: a,
		next: a.config.TokenSource(ctx, initial),
		last: initial.AccessToken,
	})
}

// TokenPath returns the path where the token is stored
func (a *Authenticator) TokenPath() string {
	return a.tokenPath
}

// load reads the token file; oauth2.Token carries its own json tags
func (a *Authenticator) load() (*oauth2.Token, error) {
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("invalid token file: %w", err)
	}
	return &token, nil
}

// save writes the token through a temp file and rename, mode 0600
func (a *Authenticator) save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	tmp := a.tokenPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp token file: %w", err)
	}
	if err := os.Rename(tmp, a.tokenPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename token file: %w", err)
	}
	return nil
}

type persistingSource struct {
	auth *Authenticator
	next oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.next.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if token.AccessToken != s.last {
		s.auth.mu.Lock()
		// 寫入失敗不影響本次請求，下次啟動會再 refresh
		_ = s.auth.save(token)
		s.auth.mu.Unlock()
		s.last = token.AccessToken
	}
	return token, nil
}
