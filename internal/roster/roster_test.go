package roster

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/notesync/models"
)

func TestPreferencesFileDecodesEmbeddedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	body := `{"preferences": "{\"state\":{\"suggestedParticipants\":{\"g1\":[{\"name\":\"Alice\"},{\"email\":\"bob@example.com\"}]}}}"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	rosters, err := NewPreferencesFile(path, nil).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rosters["g1"]) != 2 || rosters["g1"][1].DisplayName() != "bob@example.com" {
		t.Fatalf("unexpected rosters %+v", rosters)
	}
}

func TestPreferencesFileMissingIsEmpty(t *testing.T) {
	rosters, err := NewPreferencesFile(filepath.Join(t.TempDir(), "none.json"), nil).Load(context.Background())
	if err != nil || len(rosters) != 0 {
		t.Fatalf("expected empty rosters, got %v (%v)", rosters, err)
	}
}

func TestPreferencesFileMalformedIsEmpty(t *testing.T) {
	for _, body := range []string{
		`{"preferences": "{broken"}`,
		`{"preferences": "{\"state\": trunc`,
	} {
		path := filepath.Join(t.TempDir(), "cache.json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		rosters, err := NewPreferencesFile(path, nil).Load(context.Background())
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", body, err)
		}
		if len(rosters) != 0 {
			t.Fatalf("%s: expected empty rosters, got %v", body, rosters)
		}
	}
}

func TestPreferencesFileUnreadableIsError(t *testing.T) {
	// Reading a directory fails with something other than not-exist.
	if _, err := NewPreferencesFile(t.TempDir(), nil).Load(context.Background()); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestDirectoryParticipants(t *testing.T) {
	dir := NewDirectory(models.Rosters{
		"g1": {{Name: "Alice"}, {Name: "Alice"}, {Email: "bob@example.com"}},
		"g2": {{Name: "Carol"}, {Name: "Me"}},
		"g3": {{Name: strings.Repeat("x", 60)}},
	}, []string{"Me", "Them"})

	cases := []struct {
		group string
		want  []string
	}{
		{"g1", []string{"Me", "Alice", "bob@example.com"}},
		{"g2", []string{"Me", "Carol"}},
		{"g3", []string{"Me"}},
		{"unknown", []string{"Me", "Them"}},
		{"", []string{"Me", "Them"}},
	}
	for _, tc := range cases {
		if got := dir.Participants(tc.group); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("group %q: expected %v, got %v", tc.group, tc.want, got)
		}
	}
	if !dir.IsFallback(dir.Participants("unknown")) {
		t.Fatalf("expected fallback detection")
	}
}
