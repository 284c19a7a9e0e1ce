// Package mapping maintains the document → group cache persisted next to the
// watermark, rebuilding it from the remote group listing when stale.
package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohammad-safakhou/notesync/config"
	"github.com/mohammad-safakhou/notesync/internal/logging"
	"github.com/mohammad-safakhou/notesync/models"
)

const (
	backupPrefix     = "document_mapping_backup_"
	backupTimeLayout = "20060102_150405"
	untitledGroup    = "Untitled List"
	untitledDocument = "Untitled"
)

// GroupSource lists every group with its documents.
type GroupSource interface {
	FetchGroups(ctx context.Context) ([]models.Group, error)
}

// Options configures a Cache.
type Options struct {
	Path        string
	BackupDir   string
	AutoRefresh bool
	MaxAge      time.Duration
	AutoBackup  bool
	Retention   time.Duration
	Policy      config.ErrorPolicy
	Logger      logrus.FieldLogger
	Now         func() time.Time
}

// OptionsFromConfig maps application config onto Options.
func OptionsFromConfig(cfg *config.Config, logger logrus.FieldLogger) Options {
	return Options{
		Path:        cfg.Paths.DocumentMapping,
		BackupDir:   cfg.Paths.BackupDirectory,
		AutoRefresh: cfg.Data.AutoRefreshMapping,
		MaxAge:      cfg.Data.MappingMaxAge(),
		AutoBackup:  cfg.Data.AutoBackupMapping,
		Retention:   cfg.Data.BackupRetention(),
		Policy:      cfg.ErrorHandling.Policy(),
		Logger:      logger,
	}
}

// Cache resolves documents to their group.
type Cache struct {
	source  GroupSource
	opts    Options
	logger  logrus.FieldLogger
	mapping models.GroupMapping
}

// New returns an unloaded Cache. Call Load before Resolve.
func New(source GroupSource, opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy == nil {
		opts.Policy = config.ContinueAll()
	}
	return &Cache{
		source:  source,
		opts:    opts,
		logger:  logging.Component(opts.Logger, "mapping"),
		mapping: models.GroupMapping{},
	}
}

// Load reads the persisted mapping, rebuilding it first when auto-refresh is
// enabled and the file is absent, older than MaxAge, or unparsable.
func (c *Cache) Load(ctx context.Context) error {
	stored, readErr := c.read()
	if reason := c.staleReason(readErr); reason != "" {
		c.logger.WithField("reason", reason).Info("document mapping is stale or missing, refreshing")
		return c.Refresh(ctx)
	}
	if readErr != nil {
		if !errors.Is(readErr, fs.ErrNotExist) {
			c.logger.WithError(readErr).Warn("could not load document mapping, continuing without it")
		}
		stored = models.GroupMapping{}
	}
	c.mapping = stored
	c.logger.WithField("documents", len(stored)).Info("loaded document mapping")
	return nil
}

func (c *Cache) staleReason(readErr error) string {
	if !c.opts.AutoRefresh {
		return ""
	}
	info, err := os.Stat(c.opts.Path)
	if err != nil {
		return "missing"
	}
	if age := c.opts.Now().Sub(info.ModTime()); age > c.opts.MaxAge {
		c.logger.Debugf("mapping file is %s old, max age is %s", age.Round(time.Second), c.opts.MaxAge)
		return "expired"
	}
	if readErr != nil {
		return "unparsable"
	}
	return ""
}

// Refresh rebuilds the mapping from the remote group listing and persists it.
// Under a continue policy, failures keep the previous mapping in place.
func (c *Cache) Refresh(ctx context.Context) error {
	groups, err := c.source.FetchGroups(ctx)
	if err != nil {
		return c.handle(&MappingError{Op: "fetch groups", Err: err}, true)
	}
	mapping := Flatten(groups)
	if err := c.save(mapping); err != nil {
		c.mapping = mapping
		return c.handle(err, false)
	}
	c.mapping = mapping
	c.logger.WithField("documents", len(mapping)).Info("created document mapping")
	return nil
}

func (c *Cache) handle(err error, keepPrevious bool) error {
	if !c.opts.Policy.ShouldContinue(config.CategoryMapping) {
		return err
	}
	c.logger.WithError(err).Error("document mapping refresh failed")
	if keepPrevious && len(c.mapping) == 0 {
		if stored, rerr := c.read(); rerr == nil {
			c.logger.WithField("documents", len(stored)).Warn("using previous document mapping")
			c.mapping = stored
		}
	}
	return nil
}

// Flatten turns the group listing into one entry per document. A document
// listed under several groups keeps the group seen last.
func Flatten(groups []models.Group) models.GroupMapping {
	mapping := models.GroupMapping{}
	for _, g := range groups {
		name := g.Name
		if name == "" {
			name = untitledGroup
		}
		for _, d := range g.Documents {
			if d.ID == "" {
				continue
			}
			title := d.Title
			if title == "" {
				title = untitledDocument
			}
			mapping[d.ID] = models.MappingEntry{GroupID: g.ID, GroupName: name, DocumentTitle: title}
		}
	}
	return mapping
}

// Resolve returns the group name and id for documentID, or empty strings.
func (c *Cache) Resolve(documentID string) (groupName, groupID string) {
	e, ok := c.mapping[documentID]
	if !ok {
		return "", ""
	}
	return e.GroupName, e.GroupID
}

// Entry returns the mapping entry for documentID.
func (c *Cache) Entry(documentID string) (models.MappingEntry, bool) {
	e, ok := c.mapping[documentID]
	return e, ok
}

// Len is the number of mapped documents.
func (c *Cache) Len() int { return len(c.mapping) }

func (c *Cache) read() (models.GroupMapping, error) {
	raw, err := os.ReadFile(c.opts.Path)
	if err != nil {
		return nil, err
	}
	var m models.GroupMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = models.GroupMapping{}
	}
	return m, nil
}

// Encode renders a mapping as it is stored on disk. Keys are sorted, so equal
// mappings encode to identical bytes.
func Encode(m models.GroupMapping) ([]byte, error) {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func (c *Cache) save(m models.GroupMapping) error {
	data, err := Encode(m)
	if err != nil {
		return &MappingError{Op: "encode", Err: err}
	}
	dir := filepath.Dir(c.opts.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &MappingError{Op: "save", Path: c.opts.Path, Err: err}
	}
	if c.opts.AutoBackup {
		c.backup()
	}
	tmp, err := os.CreateTemp(dir, ".document_mapping-*")
	if err != nil {
		return &MappingError{Op: "save", Path: c.opts.Path, Err: err}
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &MappingError{Op: "save", Path: c.opts.Path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &MappingError{Op: "save", Path: c.opts.Path, Err: err}
	}
	if err := os.Rename(tmp.Name(), c.opts.Path); err != nil {
		return &MappingError{Op: "save", Path: c.opts.Path, Err: err}
	}
	return nil
}

// backup copies the current mapping file aside. Failures are logged only.
func (c *Cache) backup() {
	src, err := os.Open(c.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		c.logger.WithError(err).Warn("failed to create mapping backup")
		return
	}
	defer src.Close()

	if err := os.MkdirAll(c.opts.BackupDir, 0o755); err != nil {
		c.logger.WithError(err).Warn("failed to create mapping backup")
		return
	}
	name := fmt.Sprintf("%s%s.json", backupPrefix, c.opts.Now().Format(backupTimeLayout))
	dstPath := filepath.Join(c.opts.BackupDir, name)
	dst, err := os.Create(dstPath)
	if err != nil {
		c.logger.WithError(err).Warn("failed to create mapping backup")
		return
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		c.logger.WithError(err).Warn("failed to create mapping backup")
		return
	}
	if err := dst.Close(); err != nil {
		c.logger.WithError(err).Warn("failed to create mapping backup")
		return
	}
	c.logger.WithField("path", dstPath).Debug("created mapping backup")
}

// CleanupBackups removes mapping backups older than the retention window and
// returns how many were deleted.
func (c *Cache) CleanupBackups() (int, error) {
	if !c.opts.AutoBackup || c.opts.BackupDir == "" {
		return 0, nil
	}
	matches, err := filepath.Glob(filepath.Join(c.opts.BackupDir, backupPrefix+"*.json"))
	if err != nil {
		return 0, err
	}
	cutoff := c.opts.Now().Add(-c.opts.Retention)
	removed := 0
	var errs []error
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
		c.logger.WithField("path", path).Debug("removed old backup")
	}
	return removed, errors.Join(errs...)
}
