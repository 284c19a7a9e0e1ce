package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeService struct {
	created string
	failing bool
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.failing {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/v2/get-documents":
		var body struct {
			Offset int `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Offset > 0 {
			fmt.Fprint(w, `{"docs":[]}`)
			return
		}
		fmt.Fprintf(w, `{"docs":[{"id":"doc-1","title":"Weekly sync","created_at":%q,"updated_at":%q}]}`, f.created, f.created)
	case "/v1/get-document-lists":
		fmt.Fprint(w, `{"document_lists":[{"id":"g1","name":"Team","documents":[{"id":"doc-1","title":"Weekly sync"}]}]}`)
	case "/v1/get-document-transcript":
		fmt.Fprint(w, `[{"source":"microphone","text":"hello"},{"source":"system","text":"hi there"}]`)
	default:
		http.NotFound(w, r)
	}
}

func writeTestConfig(t *testing.T, baseURL string, extra string) (cfgPath, vaultDir string) {
	t.Helper()
	dir := t.TempDir()
	vaultDir = filepath.Join(dir, "vault")
	creds := filepath.Join(dir, "creds.json")
	if err := os.WriteFile(creds, []byte(`{"workos_tokens":{"access_token":"tok"}}`), 0o600); err != nil {
		t.Fatalf("write creds: %v", err)
	}
	body := fmt.Sprintf(`
api:
  base_url: %s
  request_delay: 0s
  max_retries: 1
paths:
  credentials: %s
  user_preferences: %s
  last_sync_file: %s
  document_mapping: %s
  vault: %s
  backup_directory: %s
  log_directory: %s
  journal: %s
  lock_file: %s
error_handling:
  retry_base_delay: 1ms
  retry_max_delay: 1ms
%s`, baseURL, creds,
		filepath.Join(dir, "prefs.json"),
		filepath.Join(dir, "last_sync.txt"),
		filepath.Join(dir, "mapping.json"),
		vaultDir,
		filepath.Join(dir, "backups"),
		filepath.Join(dir, "logs"),
		filepath.Join(dir, "journal.sqlite"),
		filepath.Join(dir, "sync.lock"),
		extra)
	cfgPath = filepath.Join(dir, "notesync.yaml")
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, vaultDir
}

func TestSyncCommandWritesNotesAndAdvances(t *testing.T) {
	svc := &fakeService{created: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}
	srv := httptest.NewServer(svc)
	defer srv.Close()
	cfgPath, vaultDir := writeTestConfig(t, srv.URL, "")

	var out, errOut bytes.Buffer
	if code := execute(context.Background(), []string{"sync", "-c", cfgPath}, &out, &errOut); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s %s", code, out.String(), errOut.String())
	}
	if !strings.Contains(out.String(), "processed=1 created=1") {
		t.Fatalf("unexpected summary: %q", out.String())
	}
	notes, _ := filepath.Glob(filepath.Join(vaultDir, "*.md"))
	if len(notes) != 1 {
		t.Fatalf("expected one note, got %v", notes)
	}
	content, err := os.ReadFile(notes[0])
	if err != nil {
		t.Fatalf("read note: %v", err)
	}
	if !strings.Contains(string(content), "Me: hello") || !strings.Contains(string(content), `document_list: "Team"`) {
		t.Fatalf("unexpected note content:\n%s", content)
	}

	// The watermark moved past the document, so nothing is fetched again.
	out.Reset()
	if code := execute(context.Background(), []string{"sync", "-c", cfgPath}, &out, &errOut); code != exitOK {
		t.Fatalf("expected exit 0 on rerun, got %d", code)
	}
	if !strings.Contains(out.String(), "processed=0") {
		t.Fatalf("expected empty rerun, got %q", out.String())
	}

	out.Reset()
	if code := execute(context.Background(), []string{"history", "-c", cfgPath}, &out, &errOut); code != exitOK {
		t.Fatalf("history exit %d: %s", code, errOut.String())
	}
	if strings.Count(out.String(), "succeeded") != 2 {
		t.Fatalf("expected two journaled runs, got:\n%s", out.String())
	}
}

func TestSyncCommandDryRunWritesNothing(t *testing.T) {
	svc := &fakeService{created: time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)}
	srv := httptest.NewServer(svc)
	defer srv.Close()
	cfgPath, vaultDir := writeTestConfig(t, srv.URL, "")

	var out, errOut bytes.Buffer
	if code := execute(context.Background(), []string{"sync", "--dry-run", "-c", cfgPath}, &out, &errOut); code != exitOK {
		t.Fatalf("expected exit 0, got %d: %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "dry run") {
		t.Fatalf("expected dry run summary, got %q", out.String())
	}
	notes, _ := filepath.Glob(filepath.Join(vaultDir, "*.md"))
	if len(notes) != 0 {
		t.Fatalf("dry run wrote notes: %v", notes)
	}
}

func TestSyncCommandFailureExitsOne(t *testing.T) {
	srv := httptest.NewServer(&fakeService{failing: true})
	defer srv.Close()
	cfgPath, _ := writeTestConfig(t, srv.URL, "  continue_on_document_error: false\n")

	var out, errOut bytes.Buffer
	code := execute(context.Background(), []string{"sync", "-c", cfgPath}, &out, &errOut)
	if code != exitFailure {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(out.String(), "sync failed in fetching") {
		t.Fatalf("unexpected failure line: %q", out.String())
	}
}

func TestExecuteReportsInterrupt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out, errOut bytes.Buffer
	if code := execute(ctx, []string{"version"}, &out, &errOut); code != exitInterrupted {
		t.Fatalf("expected exit 130, got %d", code)
	}
}

func TestVersionAndUnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := execute(context.Background(), []string{"version"}, &out, &errOut); code != exitOK {
		t.Fatalf("version exit %d", code)
	}
	if !strings.HasPrefix(out.String(), "notesync dev") {
		t.Fatalf("unexpected version output %q", out.String())
	}
	if code := execute(context.Background(), []string{"bogus"}, &out, &errOut); code != exitFailure {
		t.Fatalf("expected exit 1 for unknown command, got %d", code)
	}
}

func TestMigrateCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "j", "journal.sqlite")
	var out, errOut bytes.Buffer
	if code := execute(context.Background(), []string{"migrate", "--db", db}, &out, &errOut); code != exitOK {
		t.Fatalf("migrate up exit %d: %s", code, errOut.String())
	}
	if code := execute(context.Background(), []string{"migrate", "--db", db, "--direction", "down"}, &out, &errOut); code != exitOK {
		t.Fatalf("migrate down exit %d: %s", code, errOut.String())
	}
	if code := execute(context.Background(), []string{"migrate", "--db", db, "--direction", "sideways"}, &out, &errOut); code != exitFailure {
		t.Fatalf("expected failure for bad direction, got %d", code)
	}
}
