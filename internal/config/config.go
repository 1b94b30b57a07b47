package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// LogLevelEnv overrides the file's log level when --log-level is not given.
const LogLevelEnv = "INBOXCLEANER_LOG_LEVEL"

const (
	DefaultQuery     = "category:promotions OR category:updates"
	DefaultMaxEmails = 500
	DefaultLabel     = "Auto-Unsubscribed"
)

// Config holds every setting of a run. Fields with a yaml tag may come from
// the config file; the rest are flag-only.
type Config struct {
	SearchQuery string   `yaml:"search_query"`
	MaxEmails   int      `yaml:"max_emails"`
	LabelName   string   `yaml:"label_name"`
	Whitelist   []string `yaml:"whitelist"`
	Blacklist   []string `yaml:"blacklist"`
	AutoArchive bool     `yaml:"auto_archive"`
	AutoDelete  bool     `yaml:"auto_delete"`
	Workers     int      `yaml:"workers"`
	OutputDir   string   `yaml:"output_dir"`
	DBPath      string   `yaml:"db_path"`
	LogLevel    string   `yaml:"log_level"`

	Live            bool   `yaml:"-"`
	CredentialsPath string `yaml:"-"`
	TokenPath       string `yaml:"-"`
	MboxPath        string `yaml:"-"`
	ConfigPath      string `yaml:"-"`
}

// Default returns the settings used when neither file nor flags say otherwise.
func Default() Config {
	return Config{
		SearchQuery:     DefaultQuery,
		MaxEmails:       DefaultMaxEmails,
		LabelName:       DefaultLabel,
		Workers:         1,
		OutputDir:       ".",
		DBPath:          defaultDBPath(),
		LogLevel:        "info",
		CredentialsPath: "credentials.json",
		TokenPath:       "token.json",
	}
}

// RegisterFlags attaches the CLI flags to the root command. --config, --db
// and --log-level are persistent so subcommands share them.
func RegisterFlags(cmd *cobra.Command) {
	def := Default()

	pf := cmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML config file")
	pf.String("db", def.DBPath, "Path to the run history database (empty disables it)")
	pf.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error (or "+LogLevelEnv+")")

	flags := cmd.Flags()
	flags.Bool("live", false, "Apply labels and other actions (default is a dry run)")
	flags.String("credentials", def.CredentialsPath, "Path to the OAuth client secrets JSON")
	flags.String("token", def.TokenPath, "Path to the cached OAuth token")
	flags.Int("max-emails", def.MaxEmails, "Maximum number of messages to scan")
	flags.String("query", def.SearchQuery, "Mailbox search query")
	flags.String("label", def.LabelName, "Label applied to processed messages in live mode")
	flags.Int("workers", def.Workers, "Number of messages fetched in parallel")
	flags.String("mbox", "", "Scan a local mbox archive instead of Gmail")
	flags.String("out-dir", def.OutputDir, "Directory for the text and HTML reports")
	flags.Bool("auto-archive", false, "Archive labeled messages in live mode")
	flags.Bool("auto-delete", false, "Move labeled messages to trash in live mode")
}

// LoadConfig builds the Config for cmd: defaults, then the YAML file, then
// the log level environment variable, then any flag the user set.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	cfg := Default()
	path, err := stringFlag(flags, "config")
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		cfg, err = Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg.ConfigPath = path
	}

	if lvl := os.Getenv(LogLevelEnv); lvl != "" {
		cfg.LogLevel = lvl
	}

	overrides := []error{
		override(flags, "query", flags.GetString, &cfg.SearchQuery),
		override(flags, "max-emails", flags.GetInt, &cfg.MaxEmails),
		override(flags, "label", flags.GetString, &cfg.LabelName),
		override(flags, "workers", flags.GetInt, &cfg.Workers),
		override(flags, "out-dir", flags.GetString, &cfg.OutputDir),
		override(flags, "db", flags.GetString, &cfg.DBPath),
		override(flags, "log-level", flags.GetString, &cfg.LogLevel),
		override(flags, "auto-archive", flags.GetBool, &cfg.AutoArchive),
		override(flags, "auto-delete", flags.GetBool, &cfg.AutoDelete),
		// Flag-only settings take the flag default too.
		value(flags, "live", flags.GetBool, &cfg.Live),
		value(flags, "credentials", flags.GetString, &cfg.CredentialsPath),
		value(flags, "token", flags.GetString, &cfg.TokenPath),
		value(flags, "mbox", flags.GetString, &cfg.MboxPath),
	}
	if err := errors.Join(overrides...); err != nil {
		return Config{}, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads a YAML config file on top of Default. Unknown keys are errors.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.SearchQuery) == "" && cfg.MboxPath == "" {
		return fmt.Errorf("search query must not be empty")
	}
	if cfg.MaxEmails < 0 {
		return fmt.Errorf("--max-emails must not be negative")
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1")
	}
	if cfg.Live && strings.TrimSpace(cfg.LabelName) == "" {
		return fmt.Errorf("--label is required in live mode")
	}
	if cfg.OutputDir == "" {
		return fmt.Errorf("--out-dir must not be empty")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}
	return nil
}

// override copies a flag into dst only when the user set it.
func override[T any](flags *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	f := flags.Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	return value(flags, name, get, dst)
}

// value copies a flag into dst whenever the command defines it.
func value[T any](flags *pflag.FlagSet, name string, get func(string) (T, error), dst *T) error {
	if flags.Lookup(name) == nil {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func stringFlag(flags *pflag.FlagSet, name string) (string, error) {
	var s string
	err := value(flags, name, flags.GetString, &s)
	return s, err
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "inboxcleaner", "inboxcleaner.db")
}
