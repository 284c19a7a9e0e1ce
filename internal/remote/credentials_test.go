package remote

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeCreds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supabase.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}
	return path
}

func TestFileTokenSourcePrefersWorkOS(t *testing.T) {
	path := writeCreds(t, `{
		"workos_tokens": "{\"access_token\":\"workos-token\"}",
		"cognito_tokens": "{\"access_token\":\"cognito-token\"}"
	}`)
	tok, err := NewFileTokenSource(path).Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "workos-token" {
		t.Fatalf("expected workos token, got %q", tok)
	}
}

func TestFileTokenSourceFallsBackToCognitoObject(t *testing.T) {
	path := writeCreds(t, `{"workos_tokens": "{}", "cognito_tokens": {"access_token": "cognito-token"}}`)
	tok, err := NewFileTokenSource(path).Token(context.Background())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "cognito-token" {
		t.Fatalf("expected cognito token, got %q", tok)
	}
}

func TestFileTokenSourceErrors(t *testing.T) {
	cases := map[string]string{
		"missing file": filepath.Join(t.TempDir(), "absent.json"),
		"no tokens":    writeCreds(t, `{"other": 1}`),
		"malformed":    writeCreds(t, `{not json`),
	}
	for name, path := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewFileTokenSource(path).Token(context.Background())
			var credErr *CredentialError
			if !errors.As(err, &credErr) {
				t.Fatalf("expected CredentialError, got %v", err)
			}
		})
	}
}
