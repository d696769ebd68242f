// Package config loads the collectionsync settings from a YAML file and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"collection-sync/internal/core/schema"
	"collection-sync/internal/transport"
)

// FileName is the config file looked up in the home directory.
const FileName = ".collectionsync.yaml"

// EnvPrefix prefixes every environment override, e.g.
// COLLECTIONSYNC_SINK_DSN.
const EnvPrefix = "COLLECTIONSYNC"

type Config struct {
	Integration string `mapstructure:"integration" yaml:"integration"`
	// MappingFile is the field-mapping YAML; empty uses the default mapping.
	MappingFile string `mapstructure:"mapping_file" yaml:"mapping_file,omitempty"`

	Notion   NotionConfig   `mapstructure:"notion" yaml:"notion"`
	Airtable AirtableConfig `mapstructure:"airtable" yaml:"airtable"`
	Google   GoogleConfig   `mapstructure:"google" yaml:"google"`
	Sink     SinkConfig     `mapstructure:"sink" yaml:"sink"`

	Concurrency int                        `mapstructure:"concurrency" yaml:"concurrency"`
	HTTPTimeout time.Duration              `mapstructure:"http_timeout" yaml:"http_timeout"`
	Retry       RetryConfig                `mapstructure:"retry" yaml:"retry"`
	RateLimits  map[string]transport.Limit `mapstructure:"rate_limits" yaml:"rate_limits,omitempty"`

	Log   LogConfig   `mapstructure:"log" yaml:"log"`
	Serve ServeConfig `mapstructure:"serve" yaml:"serve"`
}

type NotionConfig struct {
	Token      string `mapstructure:"token" yaml:"token,omitempty"`
	DatabaseID string `mapstructure:"database_id" yaml:"database_id,omitempty"`
}

type AirtableConfig struct {
	Token   string `mapstructure:"token" yaml:"token,omitempty"`
	BaseID  string `mapstructure:"base_id" yaml:"base_id,omitempty"`
	TableID string `mapstructure:"table_id" yaml:"table_id,omitempty"`
}

// GoogleConfig covers the Sheets source. With ClientID set the OAuth token
// in TokenFile is used; otherwise APIKey (public sheets only).
type GoogleConfig struct {
	ClientID      string `mapstructure:"client_id" yaml:"client_id,omitempty"`
	ClientSecret  string `mapstructure:"client_secret" yaml:"client_secret,omitempty"`
	RedirectURL   string `mapstructure:"redirect_url" yaml:"redirect_url,omitempty"`
	APIKey        string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	TokenFile     string `mapstructure:"token_file" yaml:"token_file,omitempty"`
	SpreadsheetID string `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id,omitempty"`
	Sheet         string `mapstructure:"sheet" yaml:"sheet,omitempty"`
	KeyColumn     string `mapstructure:"key_column" yaml:"key_column,omitempty"`
}

// SinkConfig selects the collection store. Driver is sqlite, postgres or
// memory.
type SinkConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	DSN        string `mapstructure:"dsn" yaml:"dsn"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	ChunkSize  int    `mapstructure:"chunk_size" yaml:"chunk_size,omitempty"`
}

type RetryConfig struct {
	Max         int           `mapstructure:"max" yaml:"max"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap" yaml:"backoff_cap"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
}

type ServeConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// keyDelimiter replaces viper's "." so host names work as rate_limits keys.
const keyDelimiter = "::"

var defaults = map[string]any{
	"integration":            "",
	"mapping_file":           "",
	"notion::token":          "",
	"notion::database_id":    "",
	"airtable::token":        "",
	"airtable::base_id":      "",
	"airtable::table_id":     "",
	"google::client_id":      "",
	"google::client_secret":  "",
	"google::redirect_url":   "",
	"google::api_key":        "",
	"google::token_file":     "",
	"google::spreadsheet_id": "",
	"google::sheet":          "",
	"google::key_column":     "",
	"sink::driver":           "sqlite",
	"sink::dsn":              "",
	"sink::collection":       "default",
	"sink::chunk_size":       250,
	"concurrency":            5,
	"http_timeout":           30 * time.Second,
	"retry::max":             4,
	"retry::backoff_base":    250 * time.Millisecond,
	"retry::backoff_cap":     5 * time.Second,
	"log::level":             "info",
	"log::file":              "",
	"log::max_size_mb":       10,
	"log::max_backups":       3,
	"log::verbose":           false,
	"serve::addr":            "127.0.0.1:8080",
}

// Tokens also read from their conventional unprefixed variables.
var aliases = map[string][]string{
	"notion::token":         {"NOTION_TOKEN"},
	"airtable::token":       {"AIRTABLE_TOKEN", "AIRTABLE_API_KEY"},
	"google::client_id":     {"GOOGLE_CLIENT_ID"},
	"google::client_secret": {"GOOGLE_CLIENT_SECRET"},
	"google::api_key":       {"GOOGLE_API_KEY"},
}

// DefaultPath returns ~/.collectionsync.yaml, or the file name alone when
// the home directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return FileName
	}
	return filepath.Join(home, FileName)
}

// Load reads path (a missing file is fine) and applies environment
// overrides on top.
func Load(path string) (Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()
	for k, names := range aliases {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(k, keyDelimiter, "_"))
		if err := v.BindEnv(append([]string{k, prefixed}, names...)...); err != nil {
			return Config{}, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Google.TokenFile == "" {
		cfg.Google.TokenFile = filepath.Join(filepath.Dir(DefaultPath()), ".collectionsync-google-token.json")
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions, since it may hold
// tokens.
func Save(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Secrets returns every credential in cfg, for log redaction.
func (c Config) Secrets() []string {
	var out []string
	for _, s := range []string{c.Notion.Token, c.Airtable.Token, c.Google.ClientSecret, c.Google.APIKey} {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// TransportOptions builds the HTTP transport settings.
func (c Config) TransportOptions() transport.Options {
	opts := transport.DefaultOptions(c.RateLimits)
	if c.Retry.Max > 0 {
		opts.RetryMax = c.Retry.Max
	}
	if c.Retry.BackoffBase > 0 {
		opts.BackoffBase = c.Retry.BackoffBase
	}
	if c.Retry.BackoffCap > 0 {
		opts.BackoffCap = c.Retry.BackoffCap
	}
	return opts
}

// ErrNoIntegration is returned when no source is configured.
var ErrNoIntegration = errors.New("config: integration is not set (notion, airtable or google-sheets)")

// SourceLocator returns the configured integration, its JSON locator and
// its static credential.
func (c Config) SourceLocator() (schema.Integration, json.RawMessage, string, error) {
	if c.Integration == "" {
		return 0, nil, "", ErrNoIntegration
	}
	in, err := schema.ParseIntegration(c.Integration)
	if err != nil {
		return 0, nil, "", err
	}
	var loc any
	var token string
	switch in {
	case schema.IntegrationNotion:
		loc = map[string]string{"databaseId": c.Notion.DatabaseID}
		token = c.Notion.Token
	case schema.IntegrationAirtable:
		loc = map[string]string{"baseId": c.Airtable.BaseID, "tableId": c.Airtable.TableID}
		token = c.Airtable.Token
	case schema.IntegrationSheets:
		loc = map[string]string{"spreadsheetId": c.Google.SpreadsheetID, "sheetTitle": c.Google.Sheet, "keyColumn": c.Google.KeyColumn}
		token = c.Google.APIKey
	}
	b, err := json.Marshal(loc)
	if err != nil {
		return 0, nil, "", err
	}
	return in, b, token, nil
}
