package app

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"parley/internal/audit"
	"parley/internal/domain"
)

// Audit backend names accepted in configuration.
const (
	AuditMemory = "memory"
	AuditSealed = "sealed"
	AuditSQLite = "sqlite"
)

// Config holds the relay daemon's runtime options.
type Config struct {
	Listen   string // HTTP listen address
	LogLevel string

	Audit AuditConfig
}

// AuditConfig selects and parameterizes the audit sink.
type AuditConfig struct {
	Backend     string // memory | sealed | sqlite
	LogKey      string // base64 32-byte key, sealed backend only
	ExportToken string // when set, GET /logs requires X-Log-Token
	Path        string // database file, sqlite backend only
}

// Load reads configuration with viper: defaults, then an optional config
// file, then PARLEY_* environment overrides (e.g. PARLEY_AUDIT_BACKEND).
func Load(file string) (Config, error) {
	v := viper.New()
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("audit.backend", AuditMemory)
	v.SetDefault("audit.log_key", "")
	v.SetDefault("audit.export_token", "")
	v.SetDefault("audit.path", "parley-audit.db")

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	return Config{
		Listen:   v.GetString("listen"),
		LogLevel: v.GetString("log_level"),
		Audit: AuditConfig{
			Backend:     v.GetString("audit.backend"),
			LogKey:      v.GetString("audit.log_key"),
			ExportToken: v.GetString("audit.export_token"),
			Path:        v.GetString("audit.path"),
		},
	}, nil
}

// Logger builds the relay logger at the configured level.
func (c Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	log := logrus.New()
	log.SetLevel(level)
	return log, nil
}

// Sink builds the configured audit sink.
//
// The sealed backend without a configured key draws an ephemeral one and
// warns: entries stay exportable, but nobody can unseal them after this
// process exits.
func (c Config) Sink(log *logrus.Logger) (domain.AuditSink, error) {
	switch c.Audit.Backend {
	case AuditMemory:
		return audit.NewMemorySink(), nil

	case AuditSealed:
		key, err := c.sealKey(log)
		if err != nil {
			return nil, err
		}
		return audit.NewSealedSink(key)

	case AuditSQLite:
		return audit.NewSQLiteSink(c.Audit.Path)

	default:
		return nil, fmt.Errorf("unknown audit backend %q", c.Audit.Backend)
	}
}

func (c Config) sealKey(log *logrus.Logger) ([]byte, error) {
	if c.Audit.LogKey == "" {
		log.Warn("generated ephemeral log key; set PARLEY_AUDIT_LOG_KEY to unseal entries across restarts")
		return audit.NewLogKey()
	}
	key, err := base64.StdEncoding.DecodeString(c.Audit.LogKey)
	if err != nil {
		return nil, fmt.Errorf("audit log key: %w", err)
	}
	if len(key) != audit.LogKeyBytes {
		return nil, audit.ErrBadLogKey
	}
	return key, nil
}
