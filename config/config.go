// Package config loads service settings from an optional TOML file and the
// environment. Environment variables always win over the file.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/redis/go-redis/v9"
)

// Config is the full service configuration.
type Config struct {
	Debug         bool          `toml:"debug"`
	ListenAddr    string        `toml:"listen_addr"`
	SessionSecret string        `toml:"session_secret"`
	CacheTTL      time.Duration `toml:"cache_ttl"`
	DeduperTTL    time.Duration `toml:"deduper_ttl"`
	Storage       Storage       `toml:"storage"`
	Redis         Redis         `toml:"redis"`
	Auth          Auth          `toml:"auth"`
	Publish       Publish       `toml:"publish"`
}

// Storage names the Azure Storage account objects.
type Storage struct {
	ConnectionString   string `toml:"connection_string"`
	TasksTable         string `toml:"tasks_table"`
	SharesTable        string `toml:"shares_table"`
	OrderTable         string `toml:"order_table"`
	NotificationsTable string `toml:"notifications_table"`
	AuditTable         string `toml:"audit_table"`
	UsersTable         string `toml:"users_table"`
	NotificationQueue  string `toml:"notification_queue"`
}

// Redis configures the change bus, list cache and deduper. An empty
// connection string runs everything in-process.
type Redis struct {
	ConnectionString string `toml:"connection_string"`
	Channel          string `toml:"channel"`
}

// Auth selects token verification.
type Auth struct {
	LocalMode    string        `toml:"local_mode"`
	SharedSecret string        `toml:"shared_secret"`
	Domain       string        `toml:"domain"`
	Audience     string        `toml:"audience"`
	JWKSCacheTTL time.Duration `toml:"jwks_cache_ttl"`
	TokenTTL     time.Duration `toml:"token_ttl"`
}

// Publish sizes the change dispatcher.
type Publish struct {
	Workers int           `toml:"workers"`
	Buffer  int           `toml:"buffer"`
	Timeout time.Duration `toml:"timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		CacheTTL:   5 * time.Minute,
		DeduperTTL: 24 * time.Hour,
		Storage: Storage{
			TasksTable:         "tasks",
			SharesTable:        "taskshares",
			OrderTable:         "taskorder",
			NotificationsTable: "notifications",
			AuditTable:         "auditlog",
			UsersTable:         "users",
			NotificationQueue:  "todo-notifications",
		},
		Redis: Redis{Channel: "todo:changes"},
		Auth: Auth{
			JWKSCacheTTL: 15 * time.Minute,
			TokenTTL:     12 * time.Hour,
		},
		Publish: Publish{Workers: 4, Buffer: 1024, Timeout: 5 * time.Second},
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds the configuration: defaults, then the TOML file named by
// CONFIG_FILE, then environment variables. The result is validated.
func Load(lookup LookupFunc) (Config, error) {
	cfg := Default()
	if path, ok := lookup("CONFIG_FILE"); ok && path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	dur := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: %q", key, v))
			return
		}
		*dst = d
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("invalid %s: must be greater than zero", key))
			return
		}
		*dst = n
	}

	if v, ok := lookup("DEBUG"); ok {
		if dbg, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = dbg
		}
	}
	str("LISTEN_ADDR", &cfg.ListenAddr)
	if v, ok := lookup("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}
	str("SESSION_SECRET", &cfg.SessionSecret)
	dur("CACHE_TTL", &cfg.CacheTTL)
	dur("DEDUPER_TTL", &cfg.DeduperTTL)

	str("STORAGE_CONNECTION_STRING", &cfg.Storage.ConnectionString)
	str("TASKS_TABLE", &cfg.Storage.TasksTable)
	str("SHARES_TABLE", &cfg.Storage.SharesTable)
	str("ORDER_TABLE", &cfg.Storage.OrderTable)
	str("NOTIFICATIONS_TABLE", &cfg.Storage.NotificationsTable)
	str("AUDIT_TABLE", &cfg.Storage.AuditTable)
	str("USERS_TABLE", &cfg.Storage.UsersTable)
	str("NOTIFICATION_QUEUE", &cfg.Storage.NotificationQueue)

	str("REDIS_CONNECTION_STRING", &cfg.Redis.ConnectionString)
	str("REDIS_CHANNEL", &cfg.Redis.Channel)

	str("LOCAL_AUTH_MODE", &cfg.Auth.LocalMode)
	str("LOCAL_AUTH_SHARED_SECRET", &cfg.Auth.SharedSecret)
	str("AUTH0_DOMAIN", &cfg.Auth.Domain)
	str("AUTH0_AUDIENCE", &cfg.Auth.Audience)
	dur("JWKS_CACHE_TTL", &cfg.Auth.JWKSCacheTTL)
	dur("TOKEN_TTL", &cfg.Auth.TokenTTL)

	num("PUBLISH_WORKERS", &cfg.Publish.Workers)
	num("PUBLISH_BUFFER", &cfg.Publish.Buffer)
	dur("PUBLISH_TIMEOUT", &cfg.Publish.Timeout)

	return errors.Join(errs...)
}

// Validate reports missing or contradictory settings.
func (c Config) Validate() error {
	var errs []error
	if c.Storage.ConnectionString == "" {
		errs = append(errs, errors.New("missing STORAGE_CONNECTION_STRING"))
	}
	for _, t := range c.Tables() {
		if t == "" {
			errs = append(errs, errors.New("missing storage table name"))
			break
		}
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("missing SESSION_SECRET"))
	}
	switch strings.ToLower(c.Auth.LocalMode) {
	case "":
		if c.Auth.Domain == "" || c.Auth.Audience == "" {
			errs = append(errs, errors.New("missing Auth0 config"))
		}
	case "hs256":
		if c.Auth.SharedSecret == "" {
			errs = append(errs, errors.New("LOCAL_AUTH_SHARED_SECRET must be set when LOCAL_AUTH_MODE=hs256"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported LOCAL_AUTH_MODE %q", c.Auth.LocalMode))
	}
	return errors.Join(errs...)
}

// Tables lists the configured table names.
func (c Config) Tables() []string {
	s := c.Storage
	return []string{s.TasksTable, s.SharesTable, s.OrderTable, s.NotificationsTable, s.AuditTable, s.UsersTable}
}

// JWKSURL is the Auth0 key set location.
func (a Auth) JWKSURL() string { return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain) }

// IssuerURL is the expected token issuer for Auth0.
func (a Auth) IssuerURL() string { return "https://" + a.Domain + "/" }

// RedisOptions accepts either a redis:// URL or the Azure style
// "host:port,password=...,ssl=true" connection string.
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if strings.Contains(parts[0], "=") || strings.Contains(parts[0], "://") {
		return nil, fmt.Errorf("invalid redis connection string")
	}
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(strings.TrimSpace(kv[1]), "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}
