package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for a sync process.
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	Paths         PathsConfig         `mapstructure:"paths"`
	Sync          SyncConfig          `mapstructure:"sync"`
	Documents     DocumentsConfig     `mapstructure:"documents"`
	Vault         VaultConfig         `mapstructure:"vault"`
	Data          DataConfig          `mapstructure:"data"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	ErrorHandling ErrorHandlingConfig `mapstructure:"error_handling"`
	Development   DevelopmentConfig   `mapstructure:"development"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
	Lock          LockConfig          `mapstructure:"lock"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// APIConfig describes the remote note service.
type APIConfig struct {
	BaseURL      string            `mapstructure:"base_url"`
	Endpoints    map[string]string `mapstructure:"endpoints"`
	RequestDelay time.Duration     `mapstructure:"request_delay"`
	BatchSize    int               `mapstructure:"batch_size"`
	MaxRetries   int               `mapstructure:"max_retries"`
	Timeout      time.Duration     `mapstructure:"timeout"`
}

// Endpoint names required in api.endpoints.
const (
	EndpointDocuments     = "documents"
	EndpointDocumentLists = "document_lists"
	EndpointTranscript    = "transcript"
)

// URL joins the base URL with the named endpoint path.
func (a APIConfig) URL(name string) (string, error) {
	path, ok := a.Endpoints[name]
	if !ok {
		return "", fmt.Errorf("unknown api endpoint: %s", name)
	}
	return strings.TrimRight(a.BaseURL, "/") + path, nil
}

func (a APIConfig) Validate() error {
	if strings.TrimSpace(a.BaseURL) == "" {
		return fmt.Errorf("api.base_url is required")
	}
	for _, name := range []string{EndpointDocuments, EndpointDocumentLists, EndpointTranscript} {
		if strings.TrimSpace(a.Endpoints[name]) == "" {
			return fmt.Errorf("api.endpoints.%s is required", name)
		}
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("api.batch_size must be greater than zero")
	}
	if a.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be greater than zero")
	}
	return nil
}

// PathsConfig lists every file and directory the sync touches.
type PathsConfig struct {
	Credentials     string `mapstructure:"credentials"`
	UserPreferences string `mapstructure:"user_preferences"`
	LastSyncFile    string `mapstructure:"last_sync_file"`
	DocumentMapping string `mapstructure:"document_mapping"`
	Vault           string `mapstructure:"vault"`
	BackupDirectory string `mapstructure:"backup_directory"`
	LogDirectory    string `mapstructure:"log_directory"`
	Journal         string `mapstructure:"journal"`
	Index           string `mapstructure:"index"`
	LockFile        string `mapstructure:"lock_file"`
}

// Normalize expands ~ and resolves every path to an absolute one.
func (p PathsConfig) Normalize() PathsConfig {
	p.Credentials = expandPath(p.Credentials)
	p.UserPreferences = expandPath(p.UserPreferences)
	p.LastSyncFile = expandPath(p.LastSyncFile)
	p.DocumentMapping = expandPath(p.DocumentMapping)
	p.Vault = expandPath(p.Vault)
	p.BackupDirectory = expandPath(p.BackupDirectory)
	p.LogDirectory = expandPath(p.LogDirectory)
	p.Journal = expandPath(p.Journal)
	p.Index = expandPath(p.Index)
	p.LockFile = expandPath(p.LockFile)
	return p
}

func (p PathsConfig) Validate() error {
	required := map[string]string{
		"paths.credentials":      p.Credentials,
		"paths.last_sync_file":   p.LastSyncFile,
		"paths.document_mapping": p.DocumentMapping,
		"paths.vault":            p.Vault,
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

// EnsureDirectories creates the vault, backup and log directories.
func (p PathsConfig) EnsureDirectories() error {
	for _, dir := range []string{p.Vault, p.BackupDirectory, p.LogDirectory} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SyncConfig controls watermark and note update behaviour.
type SyncConfig struct {
	DefaultLookbackDays      int      `mapstructure:"default_lookback_days"`
	FallbackParticipants     []string `mapstructure:"fallback_participants"`
	UpdateExistingFiles      bool     `mapstructure:"update_existing_files"`
	CreateBackupBeforeUpdate bool     `mapstructure:"create_backup_before_update"`
}

// Lookback returns the default watermark window used when no watermark exists.
func (s SyncConfig) Lookback() time.Duration {
	return time.Duration(s.DefaultLookbackDays) * 24 * time.Hour
}

// DocumentsConfig shapes file names and note section text.
type DocumentsConfig struct {
	SafeFilenamePattern     string `mapstructure:"safe_filename_pattern"`
	MaxFilenameLength       int    `mapstructure:"max_filename_length"`
	FilenameFormat          string `mapstructure:"filename_format"`
	TranscriptSectionHeader string `mapstructure:"transcript_section_header"`
	NotesSectionHeader      string `mapstructure:"notes_section_header"`
	NoTranscriptMessage     string `mapstructure:"no_transcript_message"`
}

func (d DocumentsConfig) Validate() error {
	if _, err := regexp.Compile(d.SafeFilenamePattern); err != nil {
		return fmt.Errorf("documents.safe_filename_pattern: %w", err)
	}
	if d.MaxFilenameLength <= 20 {
		return fmt.Errorf("documents.max_filename_length must be greater than 20")
	}
	if !strings.Contains(d.FilenameFormat, "{title}") {
		return fmt.Errorf("documents.filename_format must contain {title}")
	}
	return nil
}

// VaultConfig controls the note layout written to the vault.
type VaultConfig struct {
	FrontmatterFields     []string `mapstructure:"frontmatter_fields"`
	IncludeMeetingSeries  bool     `mapstructure:"include_meeting_series"`
	IncludeSpeakerSummary bool     `mapstructure:"include_speaker_summary"`
	SourceTag             string   `mapstructure:"source_tag"`
}

// DataConfig controls response validation and the mapping cache.
type DataConfig struct {
	ValidateAPIResponses bool `mapstructure:"validate_api_responses"`
	AutoRefreshMapping   bool `mapstructure:"auto_refresh_mapping"`
	MappingMaxAgeHours   int  `mapstructure:"mapping_max_age_hours"`
	AutoBackupMapping    bool `mapstructure:"auto_backup_mapping"`
	BackupRetentionDays  int  `mapstructure:"backup_retention_days"`
}

// MappingMaxAge is the age after which the mapping file is rebuilt.
func (d DataConfig) MappingMaxAge() time.Duration {
	return time.Duration(d.MappingMaxAgeHours) * time.Hour
}

// BackupRetention is the age after which mapping backups are purged.
func (d DataConfig) BackupRetention() time.Duration {
	return time.Duration(d.BackupRetentionDays) * 24 * time.Hour
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level             string `mapstructure:"level"`
	Format            string `mapstructure:"format"` // text or json
	IncludeTimestamps bool   `mapstructure:"include_timestamps"`
}

func (l LoggingConfig) Validate() error {
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
		return nil
	}
	return fmt.Errorf("logging.format must be text or json, got %q", l.Format)
}

// ErrorHandlingConfig holds the continue/abort flags and retry delays.
type ErrorHandlingConfig struct {
	ContinueOnDocumentError   bool          `mapstructure:"continue_on_document_error"`
	ContinueOnTranscriptError bool          `mapstructure:"continue_on_transcript_error"`
	ContinueOnMappingError    bool          `mapstructure:"continue_on_mapping_error"`
	RetryBaseDelay            time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay             time.Duration `mapstructure:"retry_max_delay"`
}

func (e ErrorHandlingConfig) Validate() error {
	if e.RetryBaseDelay < 0 || e.RetryMaxDelay < 0 {
		return fmt.Errorf("error_handling retry delays cannot be negative")
	}
	if e.RetryMaxDelay < e.RetryBaseDelay {
		return fmt.Errorf("error_handling.retry_max_delay must be >= retry_base_delay")
	}
	return nil
}

// DevelopmentConfig toggles dry-run and verbose error output.
type DevelopmentConfig struct {
	DryRun        bool `mapstructure:"dry_run"`
	VerboseOutput bool `mapstructure:"verbose_output"`
}

// ScheduleConfig drives the daemon command.
type ScheduleConfig struct {
	Cron          string `mapstructure:"cron"`
	RunOnStart    bool   `mapstructure:"run_on_start"`
	ListenAddress string `mapstructure:"listen_address"`
}

// LockConfig selects how concurrent sync passes are excluded.
type LockConfig struct {
	Backend string        `mapstructure:"backend"` // file, redis or none
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

func (l LockConfig) Validate() error {
	switch l.Backend {
	case "file", "none":
		return nil
	case "redis":
		return l.Redis.Validate()
	}
	return fmt.Errorf("lock.backend must be file, redis or none, got %q", l.Backend)
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Key      string        `mapstructure:"key"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("lock.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("lock.redis.port required")
	}
	return nil
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	MetricsTextfile string `mapstructure:"metrics_textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://api.granola.ai")
	v.SetDefault("api.endpoints.documents", "/v2/get-documents")
	v.SetDefault("api.endpoints.document_lists", "/v1/get-document-lists")
	v.SetDefault("api.endpoints.transcript", "/v1/get-document-transcript")
	v.SetDefault("api.request_delay", 500*time.Millisecond)
	v.SetDefault("api.batch_size", 100)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("paths.credentials", "~/Library/Application Support/Granola/supabase.json")
	v.SetDefault("paths.user_preferences", "~/Library/Application Support/Granola/cache-v3.json")
	v.SetDefault("paths.last_sync_file", "~/.notesync/last_sync.txt")
	v.SetDefault("paths.document_mapping", "~/.notesync/document_mapping.json")
	v.SetDefault("paths.vault", "~/Documents/Obsidian/Meetings")
	v.SetDefault("paths.backup_directory", "~/.notesync/backups")
	v.SetDefault("paths.log_directory", "~/.notesync/logs")
	v.SetDefault("paths.journal", "~/.notesync/journal.sqlite")
	v.SetDefault("paths.index", "")
	v.SetDefault("paths.lock_file", "~/.notesync/sync.lock")

	v.SetDefault("sync.default_lookback_days", 7)
	v.SetDefault("sync.fallback_participants", []string{"Me", "Them"})
	v.SetDefault("sync.update_existing_files", true)
	v.SetDefault("sync.create_backup_before_update", false)

	v.SetDefault("documents.safe_filename_pattern", `[^\w\s-]`)
	v.SetDefault("documents.max_filename_length", 255)
	v.SetDefault("documents.filename_format", "{date}-{title}.md")
	v.SetDefault("documents.transcript_section_header", "## Transcript")
	v.SetDefault("documents.notes_section_header", "## Notes")
	v.SetDefault("documents.no_transcript_message", "_No transcript available._")

	v.SetDefault("vault.frontmatter_fields", []string{"title", "date", "participants", "granola_id", "created_at", "updated_at", "source", "document_list", "document_list_id"})
	v.SetDefault("vault.include_meeting_series", true)
	v.SetDefault("vault.include_speaker_summary", false)
	v.SetDefault("vault.source_tag", "granola")

	v.SetDefault("data.validate_api_responses", true)
	v.SetDefault("data.auto_refresh_mapping", true)
	v.SetDefault("data.mapping_max_age_hours", 24)
	v.SetDefault("data.auto_backup_mapping", true)
	v.SetDefault("data.backup_retention_days", 30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.include_timestamps", true)

	v.SetDefault("error_handling.continue_on_document_error", true)
	v.SetDefault("error_handling.continue_on_transcript_error", true)
	v.SetDefault("error_handling.continue_on_mapping_error", true)
	v.SetDefault("error_handling.retry_base_delay", time.Second)
	v.SetDefault("error_handling.retry_max_delay", 30*time.Second)

	v.SetDefault("development.dry_run", false)
	v.SetDefault("development.verbose_output", false)

	v.SetDefault("schedule.cron", "0 * * * *")
	v.SetDefault("schedule.run_on_start", true)
	v.SetDefault("schedule.listen_address", "127.0.0.1:9187")

	v.SetDefault("lock.backend", "file")
	v.SetDefault("lock.ttl", 30*time.Minute)
	v.SetDefault("lock.redis.host", "localhost")
	v.SetDefault("lock.redis.port", "6379")
	v.SetDefault("lock.redis.timeout", 5*time.Second)
	v.SetDefault("lock.redis.key", "notesync:lock")
}

// LoadConfig loads config from file. An empty path searches ./config, . and the
// executable directory for notesync.yaml; a missing file then falls back to defaults.
func LoadConfig(path string) (*Config, error) {
	// .env is optional; values already in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path == "" {
		v.SetConfigName("notesync")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".notesync"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
		path = v.ConfigFileUsed()
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := v.ReadConfig(strings.NewReader(ExpandEnv(string(raw)))); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("NOTESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Paths = cfg.Paths.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// ExpandEnv replaces $NAME and ${NAME} with the environment value. References
// to unset variables and any other $ are left as written.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name := m[1]
		if name == "" {
			name = m[2]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return ref
	})
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.API, c.Paths, c.Documents, c.Logging, c.ErrorHandling, c.Lock,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func expandPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
