// Package config handles the XDG configuration directory, file paths, and
// environment settings.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// AppName is the application directory name.
	AppName = "dcc"

	// OAuthClientFile is the OAuth client credentials filename.
	OAuthClientFile = "oauth_client.json"

	// TokenFile is the stored OAuth token filename.
	TokenFile = "token.json"

	// UserFile is the stored signed-in user profile filename.
	UserFile = "user.json"

	// SettingsFile is the optional settings filename inside the config directory.
	SettingsFile = "config.yaml"

	// EnvPrefix prefixes every environment variable the app reads.
	EnvPrefix = "DCC"
)

// Backend names.
const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

// Defaults for settings not provided by the environment or settings file.
const (
	DefaultBackend           = BackendFirestore
	DefaultFirestoreDatabase = "(default)"
	DefaultBasePath          = "/"
	DefaultListenAddr        = ":8080"
	DefaultPollInterval      = 2 * time.Second
	DefaultAIModel           = "gemini-1.5-flash"
)

// ErrInvalid is wrapped by every error Validate returns.
var ErrInvalid = errors.New("configuration error")

// Config holds configuration paths and settings.
type Config struct {
	// Dir is the configuration directory path.
	Dir string

	// Debug enables debug logging.
	Debug bool

	// Quiet suppresses informational output.
	Quiet bool

	// Backend selects the task store: "firestore" or "sqlite".
	Backend string

	// FirestoreProject is the Google Cloud project holding the Firestore database.
	FirestoreProject string

	// FirestoreDatabase is the Firestore database ID.
	FirestoreDatabase string

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string

	// BasePath is the URL prefix the HTTP surface is mounted under.
	BasePath string

	// ListenAddr is the default address for `dcc serve`.
	ListenAddr string

	// PollInterval is how often live views refetch from the store.
	PollInterval time.Duration

	// AIModel is the Gemini model name.
	AIModel string

	problems []string
}

// New creates a new Config with the default or specified config directory.
// If configDir is empty, uses XDG_CONFIG_HOME/dcc or $HOME/.config/dcc.
// Settings start at their defaults; call Load to read the environment.
func New(configDir string) (*Config, error) {
	dir := configDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &Config{
		Dir:               dir,
		Backend:           DefaultBackend,
		FirestoreDatabase: DefaultFirestoreDatabase,
		SQLitePath:        filepath.Join(dir, "dcc.db"),
		BasePath:          DefaultBasePath,
		ListenAddr:        DefaultListenAddr,
		PollInterval:      DefaultPollInterval,
		AIModel:           DefaultAIModel,
	}, nil
}

// DefaultConfigDir returns the default configuration directory.
// Uses XDG_CONFIG_HOME if set, otherwise $HOME/.config.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home can't be determined
		return AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads settings from an optional .env file in the working directory,
// the optional config.yaml in Dir, and DCC_* environment variables, in
// increasing order of precedence. Values that fail to parse are kept at
// their defaults and reported by Validate.
func (c *Config) Load() error {
	// .env is optional; variables already set in the environment win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	v.SetDefault("backend", c.Backend)
	v.SetDefault("firestore_project", c.FirestoreProject)
	v.SetDefault("firestore_database", c.FirestoreDatabase)
	v.SetDefault("sqlite_path", c.SQLitePath)
	v.SetDefault("base_path", c.BasePath)
	v.SetDefault("listen_addr", c.ListenAddr)
	v.SetDefault("poll_interval", c.PollInterval.String())
	v.SetDefault("ai_model", c.AIModel)

	if _, err := os.Stat(c.SettingsPath()); err == nil {
		v.SetConfigFile(c.SettingsPath())
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("invalid %s: %w", SettingsFile, err)
		}
	}

	c.problems = nil
	c.Backend = strings.ToLower(strings.TrimSpace(v.GetString("backend")))
	c.FirestoreProject = strings.TrimSpace(v.GetString("firestore_project"))
	c.FirestoreDatabase = strings.TrimSpace(v.GetString("firestore_database"))
	c.SQLitePath = strings.TrimSpace(v.GetString("sqlite_path"))
	c.BasePath = strings.TrimSpace(v.GetString("base_path"))
	c.ListenAddr = strings.TrimSpace(v.GetString("listen_addr"))
	c.AIModel = strings.TrimSpace(v.GetString("ai_model"))

	raw := strings.TrimSpace(v.GetString("poll_interval"))
	if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
		c.problems = append(c.problems, fmt.Sprintf("%s_POLL_INTERVAL must be a positive duration, got %q", EnvPrefix, raw))
	} else {
		c.PollInterval = d
	}
	return nil
}

// Validate reports every missing or invalid setting in one error.
func (c *Config) Validate() error {
	problems := append([]string(nil), c.problems...)

	switch c.Backend {
	case BackendFirestore:
		if c.FirestoreProject == "" {
			problems = append(problems, EnvPrefix+"_FIRESTORE_PROJECT is required for the firestore backend")
		}
		if c.FirestoreDatabase == "" {
			problems = append(problems, EnvPrefix+"_FIRESTORE_DATABASE must not be empty")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			problems = append(problems, EnvPrefix+"_SQLITE_PATH must not be empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("%s_BACKEND must be %q or %q, got %q", EnvPrefix, BackendFirestore, BackendSQLite, c.Backend))
	}

	if !strings.HasPrefix(c.BasePath, "/") {
		problems = append(problems, fmt.Sprintf("%s_BASE_PATH must start with /, got %q", EnvPrefix, c.BasePath))
	}
	if c.ListenAddr == "" {
		problems = append(problems, EnvPrefix+"_LISTEN_ADDR must not be empty")
	}
	if c.AIModel == "" {
		problems = append(problems, EnvPrefix+"_AI_MODEL must not be empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Logger returns the debug logger: stderr with --debug, discarded otherwise.
func (c *Config) Logger() *log.Logger {
	if c.Debug {
		return log.New(os.Stderr, AppName+": ", log.LstdFlags)
	}
	return log.New(io.Discard, "", 0)
}

// OAuthClientPath returns the path to the OAuth client credentials file.
func (c *Config) OAuthClientPath() string {
	return filepath.Join(c.Dir, OAuthClientFile)
}

// TokenPath returns the path to the stored OAuth token file.
func (c *Config) TokenPath() string {
	return filepath.Join(c.Dir, TokenFile)
}

// UserPath returns the path to the stored user profile.
func (c *Config) UserPath() string {
	return filepath.Join(c.Dir, UserFile)
}

// SettingsPath returns the path to the optional settings file.
func (c *Config) SettingsPath() string {
	return filepath.Join(c.Dir, SettingsFile)
}

// EnsureDir creates the config directory if it doesn't exist.
// Directory is created with mode 0700.
func (c *Config) EnsureDir() error {
	return os.MkdirAll(c.Dir, 0700)
}

// HasOAuthClient checks if the OAuth client credentials file exists.
func (c *Config) HasOAuthClient() bool {
	_, err := os.Stat(c.OAuthClientPath())
	return err == nil
}

// HasToken checks if the token file exists.
func (c *Config) HasToken() bool {
	_, err := os.Stat(c.TokenPath())
	return err == nil
}

// RemoveToken deletes the token file.
func (c *Config) RemoveToken() error {
	return os.Remove(c.TokenPath())
}

// RemoveUser deletes the stored user profile.
func (c *Config) RemoveUser() error {
	return os.Remove(c.UserPath())
}
