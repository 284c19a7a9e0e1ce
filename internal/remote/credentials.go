package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource yields a bearer token for the remote service.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// FileTokenSource reads access tokens from the desktop app's credential file.
// The file holds either a workos_tokens or a cognito_tokens entry, each of which
// may be a JSON object or a JSON string wrapping one. WorkOS wins when present.
type FileTokenSource struct {
	Path string
}

// NewFileTokenSource constructs a FileTokenSource for path.
func NewFileTokenSource(path string) *FileTokenSource {
	return &FileTokenSource{Path: path}
}

type tokenSet struct {
	AccessToken string `json:"access_token"`
}

// nestedTokens decodes either an object or a string holding an object.
type nestedTokens struct {
	tokenSet
}

func (n *nestedTokens) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var inner string
		if err := json.Unmarshal(b, &inner); err != nil {
			return err
		}
		if inner == "" {
			return nil
		}
		b = []byte(inner)
	}
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	return json.Unmarshal(b, &n.tokenSet)
}

type credentialFile struct {
	WorkOS  *nestedTokens `json:"workos_tokens"`
	Cognito *nestedTokens `json:"cognito_tokens"`
}

var errNoAccessToken = errors.New("no access_token in workos_tokens or cognito_tokens")

// Token loads the preferred access token from disk.
func (s *FileTokenSource) Token(ctx context.Context) (string, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return "", &CredentialError{Path: s.Path, Err: err}
	}
	var creds credentialFile
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", &CredentialError{Path: s.Path, Err: err}
	}
	for _, set := range []*nestedTokens{creds.WorkOS, creds.Cognito} {
		if set != nil && set.AccessToken != "" {
			return set.AccessToken, nil
		}
	}
	return "", &CredentialError{Path: s.Path, Err: errNoAccessToken}
}

// StaticTokenSource always returns the same token.
type StaticTokenSource string

func (s StaticTokenSource) Token(context.Context) (string, error) { return string(s), nil }

// tokenExpiry reads the exp claim without verifying the signature; the token is
// only forwarded to the service that issued it. ok is false for opaque tokens.
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
