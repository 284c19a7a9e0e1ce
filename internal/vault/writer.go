// Package vault renders attributed transcripts as markdown notes and writes
// them into the vault directory.
package vault

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/logging"
)

// Outcome is what Save did with a note.
type Outcome int

const (
	Created Outcome = iota
	Updated
	// Unchanged means the file already held identical content.
	Unchanged
	// Skipped means the file exists and updates are disabled.
	Skipped
)

func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Options configures a Writer.
type Options struct {
	Dir                string
	BackupDir          string
	Documents          config.DocumentsConfig
	Vault              config.VaultConfig
	UpdateExisting     bool
	BackupBeforeUpdate bool
	DryRun             bool
	Logger             logrus.FieldLogger
	Now                func() time.Time
}

// OptionsFromConfig maps application config onto Options.
func OptionsFromConfig(cfg *config.Config, logger logrus.FieldLogger) Options {
	return Options{
		Dir:                cfg.Paths.Vault,
		BackupDir:          cfg.Paths.BackupDirectory,
		Documents:          cfg.Documents,
		Vault:              cfg.Vault,
		UpdateExisting:     cfg.Sync.UpdateExistingFiles,
		BackupBeforeUpdate: cfg.Sync.CreateBackupBeforeUpdate,
		DryRun:             cfg.Development.DryRun,
		Logger:             logger,
	}
}

// Writer renders and stores notes.
type Writer struct {
	dir            string
	backupDir      string
	docs           config.DocumentsConfig
	vault          config.VaultConfig
	updateExisting bool
	backup         bool
	dryRun         bool
	unsafe         *regexp.Regexp
	logger         logrus.FieldLogger
	now            func() time.Time
}

// NewWriter validates opts and returns a Writer.
func NewWriter(opts Options) (*Writer, error) {
	if opts.Dir == "" {
		return nil, errors.New("vault directory is required")
	}
	unsafe, err := regexp.Compile(opts.Documents.SafeFilenamePattern)
	if err != nil {
		return nil, fmt.Errorf("compile safe filename pattern: %w", err)
	}
	if opts.Documents.FilenameFormat == "" {
		opts.Documents.FilenameFormat = "{date}-{title}.md"
	}
	if opts.Documents.MaxFilenameLength <= filenameReserve {
		opts.Documents.MaxFilenameLength = 255
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Writer{
		dir:            opts.Dir,
		backupDir:      opts.BackupDir,
		docs:           opts.Documents,
		vault:          opts.Vault,
		updateExisting: opts.UpdateExisting,
		backup:         opts.BackupBeforeUpdate,
		dryRun:         opts.DryRun,
		unsafe:         unsafe,
		logger:         logging.Component(opts.Logger, "vault"),
		now:            opts.Now,
	}, nil
}

// Dir is the vault directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the vault path for filename.
func (w *Writer) Path(filename string) string { return filepath.Join(w.dir, filename) }

// Save writes content to filename inside the vault. In dry-run mode nothing
// is written but the outcome that would have happened is returned.
func (w *Writer) Save(content, filename string) (Outcome, error) {
	path := w.Path(filename)
	existing, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("read existing note %s: %w", filename, err)
	}

	outcome := Created
	if exists {
		if !w.updateExisting {
			w.logger.WithField("file", filename).Info("file exists and updates are disabled, skipping")
			return Skipped, nil
		}
		if Hash([]byte(content)) == Hash(existing) {
			w.logger.WithField("file", filename).Debug("note unchanged")
			return Unchanged, nil
		}
		outcome = Updated
	}

	if w.dryRun {
		w.logger.WithFields(logrus.Fields{"path": path, "outcome": outcome.String()}).Info("[dry run] note not written")
		return outcome, nil
	}
	if exists && w.backup {
		w.backupNote(path, existing)
	}
	if err := writeAtomic(path, []byte(content)); err != nil {
		return 0, fmt.Errorf("save note %s: %w", filename, err)
	}
	w.logger.WithFields(logrus.Fields{"file": filename, "outcome": outcome.String()}).Debug("saved note")
	return outcome, nil
}

// backupNote copies the previous version aside. Failures are logged only.
func (w *Writer) backupNote(path string, existing []byte) {
	dir := w.backupDir
	if dir == "" {
		dir = filepath.Join(w.dir, ".backups")
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	name := fmt.Sprintf("%s_backup_%s%s", stem, w.now().Format("20060102_150405"), ext)
	dst := filepath.Join(dir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		w.logger.WithError(err).WithField("path", path).Warn("failed to create note backup")
		return
	}
	if err := os.WriteFile(dst, existing, 0o644); err != nil {
		w.logger.WithError(err).WithField("path", path).Warn("failed to create note backup")
		return
	}
	w.logger.WithField("backup", dst).Debug("created note backup")
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".note-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CountNotes returns the number of markdown files at the top of the vault.
// An unreadable vault counts as empty.
func (w *Writer) CountNotes() int {
	matches, err := filepath.Glob(filepath.Join(w.dir, "*.md"))
	if err != nil {
		return 0
	}
	return len(matches)
}

// Hash is the hex blake2b-256 digest of content.
func Hash(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Validate checks that content starts with a well-formed YAML frontmatter block.
func Validate(content string) error {
	if content == "" {
		return &ValidationError{Reason: "empty content"}
	}
	if !strings.HasPrefix(content, "---\n") {
		return &ValidationError{Reason: "missing YAML frontmatter"}
	}
	rest := content[len("---\n"):]
	var header string
	if !strings.HasPrefix(rest, "---\n") {
		end := strings.Index(rest, "\n---\n")
		if end < 0 {
			return &ValidationError{Reason: "unterminated YAML frontmatter"}
		}
		header = rest[:end]
	}
	var fields map[string]any
	if err := yaml.Unmarshal([]byte(header), &fields); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("frontmatter is not valid YAML: %v", err)}
	}
	return nil
}
