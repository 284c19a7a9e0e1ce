package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
api:
  base_url: ${NOTESYNC_TEST_BASE}
  batch_size: 25
  max_retries: 4
  request_delay: 250ms
paths:
  credentials: /tmp/creds.json
  last_sync_file: /tmp/last_sync.txt
  document_mapping: /tmp/mapping.json
  vault: /tmp/vault
error_handling:
  continue_on_transcript_error: false
  retry_base_delay: 2s
  retry_max_delay: 10s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notesync.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesFileDefaultsAndEnvExpansion(t *testing.T) {
	t.Setenv("NOTESYNC_TEST_BASE", "http://notes.test")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://notes.test" {
		t.Fatalf("expected expanded base url, got %q", cfg.API.BaseURL)
	}
	if cfg.API.BatchSize != 25 || cfg.API.MaxRetries != 4 {
		t.Fatalf("unexpected api sizing: %+v", cfg.API)
	}
	if cfg.API.RequestDelay != 250*time.Millisecond {
		t.Fatalf("expected request delay 250ms, got %s", cfg.API.RequestDelay)
	}
	url, err := cfg.API.URL(EndpointTranscript)
	if err != nil || url != "http://notes.test/v1/get-document-transcript" {
		t.Fatalf("unexpected transcript url %q (%v)", url, err)
	}
	if cfg.Data.MappingMaxAge() != 24*time.Hour {
		t.Fatalf("expected default mapping max age 24h, got %s", cfg.Data.MappingMaxAge())
	}
	if len(cfg.Sync.FallbackParticipants) != 2 {
		t.Fatalf("expected default fallback participants, got %v", cfg.Sync.FallbackParticipants)
	}
}

func TestLoadConfigExpandsSearchPathFile(t *testing.T) {
	t.Setenv("NOTESYNC_TEST_BASE", "http://found.test")
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	body := sampleConfig + "documents:\n  safe_filename_pattern: '[^\\w\\s-]$'\n"
	if err := os.WriteFile(filepath.Join(dir, "config", "notesync.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BaseURL != "http://found.test" {
		t.Fatalf("expected expanded base url from search path, got %q", cfg.API.BaseURL)
	}
	if cfg.Documents.SafeFilenamePattern != `[^\w\s-]$` {
		t.Fatalf("pattern was altered: %q", cfg.Documents.SafeFilenamePattern)
	}
}

func TestExpandEnvKeepsUnknownReferences(t *testing.T) {
	t.Setenv("NOTESYNC_KNOWN", "yes")
	os.Unsetenv("NOTESYNC_UNKNOWN")
	cases := map[string]string{
		"${NOTESYNC_KNOWN}/x":   "yes/x",
		"$NOTESYNC_KNOWN-y":     "yes-y",
		"${NOTESYNC_UNKNOWN}/x": "${NOTESYNC_UNKNOWN}/x",
		"$NOTESYNC_UNKNOWN":     "$NOTESYNC_UNKNOWN",
		"cost $5 and $":         "cost $5 and $",
	}
	for in, want := range cases {
		if got := ExpandEnv(in); got != want {
			t.Fatalf("ExpandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("NOTESYNC_TEST_BASE", "http://notes.test")
	t.Setenv("NOTESYNC_API_BATCH_SIZE", "7")
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.API.BatchSize != 7 {
		t.Fatalf("expected env override batch size 7, got %d", cfg.API.BatchSize)
	}
}

func TestLoadConfigRejectsInvalidLockBackend(t *testing.T) {
	t.Setenv("NOTESYNC_TEST_BASE", "http://notes.test")
	body := sampleConfig + "lock:\n  backend: etcd\n"
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatalf("expected validation error for lock backend")
	}
}

func TestErrorPolicyResolvesFlags(t *testing.T) {
	policy := ErrorHandlingConfig{
		ContinueOnDocumentError:   true,
		ContinueOnTranscriptError: false,
		ContinueOnMappingError:    true,
	}.Policy()

	if !policy.ShouldContinue(CategoryDocument) {
		t.Fatalf("expected document errors to continue")
	}
	if policy.ShouldContinue(CategoryTranscript) {
		t.Fatalf("expected transcript errors to abort")
	}
	if policy.Action(CategoryMapping) != Continue {
		t.Fatalf("expected mapping errors to continue")
	}
	if (ErrorPolicy{}).Action(CategoryDocument) != Abort {
		t.Fatalf("expected empty policy to abort")
	}
}

func TestErrorHandlingValidate(t *testing.T) {
	bad := ErrorHandlingConfig{RetryBaseDelay: 5 * time.Second, RetryMaxDelay: time.Second}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error when max delay < base delay")
	}
}
