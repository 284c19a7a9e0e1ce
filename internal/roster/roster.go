// Package roster loads group participant rosters and resolves the participant
// list used for speaker attribution.
package roster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/models"
)

// LocalUser is the label placed first in every resolved roster.
const LocalUser = "Me"

const maxNameLength = 50

// Loader returns the rosters keyed by group id.
type Loader interface {
	Load(ctx context.Context) (models.Rosters, error)
}

// encoded decodes a JSON string whose content is itself JSON of type T. An
// already-decoded object is accepted as well.
type encoded[T any] struct {
	Value T
}

func (e *encoded[T]) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return json.Unmarshal(b, &e.Value)
	}
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), &e.Value)
}

type preferenceState struct {
	State struct {
		SuggestedParticipants models.Rosters `json:"suggestedParticipants"`
	} `json:"state"`
}

type preferencesFile struct {
	Preferences *encoded[preferenceState] `json:"preferences"`
}

// PreferencesFile reads rosters from the desktop app's preference cache.
type PreferencesFile struct {
	path   string
	logger logrus.FieldLogger
}

// NewPreferencesFile returns a loader for path.
func NewPreferencesFile(path string, logger logrus.FieldLogger) *PreferencesFile {
	return &PreferencesFile{path: path, logger: logging.Component(logger, "roster")}
}

// Load parses the preference file. A missing, malformed or empty file yields
// empty rosters. Only a failed read is an error.
func (p *PreferencesFile) Load(ctx context.Context) (models.Rosters, error) {
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.WithField("path", p.path).Warn("participant preferences not found, using fallback participants")
		return models.Rosters{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read participant preferences: %w", err)
	}
	var file preferencesFile
	if err := json.Unmarshal(raw, &file); err != nil {
		p.logger.WithError(err).WithField("path", p.path).Warn("could not decode participant preferences, using fallback participants")
		return models.Rosters{}, nil
	}
	if file.Preferences == nil || file.Preferences.Value.State.SuggestedParticipants == nil {
		p.logger.Warn("participant preferences carry no suggested participants")
		return models.Rosters{}, nil
	}
	rosters := file.Preferences.Value.State.SuggestedParticipants
	p.logger.WithField("groups", len(rosters)).Info("loaded participant data")
	return rosters, nil
}

// Directory resolves a group id to its ordered participant names.
type Directory struct {
	rosters  models.Rosters
	fallback []string
}

// NewDirectory builds a Directory. fallback is used for unknown groups.
func NewDirectory(rosters models.Rosters, fallback []string) *Directory {
	return &Directory{rosters: rosters, fallback: fallback}
}

// Participants returns the roster for groupID with the local user first, or a
// copy of the fallback list when the group is unknown or has no usable names.
func (d *Directory) Participants(groupID string) []string {
	entries, ok := d.rosters[groupID]
	if groupID == "" || !ok {
		return d.Fallback()
	}
	names := make([]string, 0, len(entries)+1)
	seen := make(map[string]struct{}, len(entries))
	for _, p := range entries {
		name := p.DisplayName()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if _, ok := seen[LocalUser]; !ok {
		names = append([]string{LocalUser}, names...)
	}
	if cleaned := Clean(names); len(cleaned) > 0 {
		return cleaned
	}
	return d.Fallback()
}

// Fallback returns a copy of the fallback participant list.
func (d *Directory) Fallback() []string {
	return append([]string(nil), d.fallback...)
}

// IsFallback reports whether names equals the fallback list.
func (d *Directory) IsFallback(names []string) bool {
	if len(names) != len(d.fallback) {
		return false
	}
	for i := range names {
		if names[i] != d.fallback[i] {
			return false
		}
	}
	return true
}

// Clean trims names, drops empty or overlong ones and moves the local user first.
func Clean(names []string) []string {
	out := make([]string, 0, len(names))
	hasLocal := false
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || len(n) > maxNameLength {
			continue
		}
		if n == LocalUser {
			hasLocal = true
			continue
		}
		out = append(out, n)
	}
	if hasLocal {
		out = append([]string{LocalUser}, out...)
	}
	return out
}
