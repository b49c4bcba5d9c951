// Package config loads service settings from defaults, an optional
// molluscadb.yaml and MOLLUSCADB_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings is the full service configuration.
type Settings struct {
	Log     LogSettings     `mapstructure:"log"`
	HTTP    HTTPSettings    `mapstructure:"http"`
	Storage StorageSettings `mapstructure:"storage"`
	Blob    BlobSettings    `mapstructure:"blob"`
	MQTT    MQTTSettings    `mapstructure:"mqtt"`
	Rules   RuleSettings    `mapstructure:"rules"`
}

// LogSettings selects the slog handler.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Trace writes one JSON line per store operation to the log output.
	Trace bool `mapstructure:"trace"`
	// AuditEntries bounds the in-memory audit log served at /api/v1/audit.
	AuditEntries int `mapstructure:"auditentries"`
}

// HTTPSettings configures the API listener and sign-in.
type HTTPSettings struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readtimeout"`
	WriteTimeout time.Duration `mapstructure:"writetimeout"`
	// AuthMode is "header" (identity asserted by a fronting proxy) or
	// "static" (single development identity).
	AuthMode    string        `mapstructure:"authmode"`
	AuthHeader  string        `mapstructure:"authheader"`
	StaticEmail string        `mapstructure:"staticemail"`
	SessionTTL  time.Duration `mapstructure:"sessionttl"`
}

// StorageSettings selects the collection store.
type StorageSettings struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlitepath"`
	PostgresDSN string `mapstructure:"postgresdsn"`
}

// BlobSettings configures the export archive.
type BlobSettings struct {
	Driver  string     `mapstructure:"driver"`
	Root    string     `mapstructure:"root"`
	Archive bool       `mapstructure:"archive"`
	S3      S3Settings `mapstructure:"s3"`
}

// S3Settings configures the s3 blob driver.
type S3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	PathStyle       bool   `mapstructure:"pathstyle"`
	AccessKeyID     string `mapstructure:"accesskeyid"`
	SecretAccessKey string `mapstructure:"secretaccesskey"`
}

// MQTTSettings configures the change feed. An empty Broker disables it.
type MQTTSettings struct {
	Broker      string `mapstructure:"broker"`
	ClientID    string `mapstructure:"clientid"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	TopicPrefix string `mapstructure:"topicprefix"`
}

// Enabled reports whether a broker is configured.
func (m MQTTSettings) Enabled() bool { return strings.TrimSpace(m.Broker) != "" }

// RuleSettings toggles the built-in integrity rules.
type RuleSettings struct {
	Default bool `mapstructure:"default"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.trace", false)
	v.SetDefault("log.auditentries", 1000)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readtimeout", 15*time.Second)
	v.SetDefault("http.writetimeout", 60*time.Second)
	v.SetDefault("http.authmode", "header")
	v.SetDefault("http.authheader", "X-Forwarded-Email")
	v.SetDefault("http.staticemail", "")
	v.SetDefault("http.sessionttl", 12*time.Hour)
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlitepath", "molluscadb.db")
	v.SetDefault("storage.postgresdsn", "")
	v.SetDefault("blob.driver", "fs")
	v.SetDefault("blob.root", "./exports")
	v.SetDefault("blob.archive", false)
	v.SetDefault("blob.s3.bucket", "")
	v.SetDefault("blob.s3.region", "us-east-1")
	v.SetDefault("blob.s3.endpoint", "")
	v.SetDefault("blob.s3.pathstyle", false)
	v.SetDefault("blob.s3.accesskeyid", "")
	v.SetDefault("blob.s3.secretaccesskey", "")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientid", "molluscadb")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicprefix", "molluscadb")
	v.SetDefault("rules.default", true)
}

// envBinding ties a config key to its environment variable.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func envBindings() []envBinding {
	return []envBinding{
		{"log.level", "MOLLUSCADB_LOG_LEVEL", oneOf("debug", "info", "warn", "error")},
		{"log.format", "MOLLUSCADB_LOG_FORMAT", oneOf("text", "json")},
		{"log.trace", "MOLLUSCADB_LOG_TRACE", validateBool},
		{"log.auditentries", "MOLLUSCADB_LOG_AUDIT_ENTRIES", validateInt},
		{"http.addr", "MOLLUSCADB_HTTP_ADDR", nil},
		{"http.authmode", "MOLLUSCADB_HTTP_AUTH_MODE", oneOf("header", "static")},
		{"http.authheader", "MOLLUSCADB_HTTP_AUTH_HEADER", nil},
		{"http.staticemail", "MOLLUSCADB_HTTP_STATIC_EMAIL", nil},
		{"http.sessionttl", "MOLLUSCADB_HTTP_SESSION_TTL", validateDuration},
		{"storage.driver", "MOLLUSCADB_STORAGE_DRIVER", oneOf("memory", "sqlite", "postgres")},
		{"storage.sqlitepath", "MOLLUSCADB_SQLITE_PATH", nil},
		{"storage.postgresdsn", "MOLLUSCADB_POSTGRES_DSN", nil},
		{"blob.driver", "MOLLUSCADB_BLOB_DRIVER", oneOf("fs", "s3", "memory")},
		{"blob.root", "MOLLUSCADB_BLOB_FS_ROOT", nil},
		{"blob.archive", "MOLLUSCADB_BLOB_ARCHIVE", validateBool},
		{"blob.s3.bucket", "MOLLUSCADB_BLOB_S3_BUCKET", nil},
		{"blob.s3.region", "MOLLUSCADB_BLOB_S3_REGION", nil},
		{"blob.s3.endpoint", "MOLLUSCADB_BLOB_S3_ENDPOINT", nil},
		{"blob.s3.pathstyle", "MOLLUSCADB_BLOB_S3_PATH_STYLE", validateBool},
		{"blob.s3.accesskeyid", "MOLLUSCADB_BLOB_S3_ACCESS_KEY_ID", nil},
		{"blob.s3.secretaccesskey", "MOLLUSCADB_BLOB_S3_SECRET_ACCESS_KEY", nil},
		{"mqtt.broker", "MOLLUSCADB_MQTT_BROKER", nil},
		{"mqtt.clientid", "MOLLUSCADB_MQTT_CLIENT_ID", nil},
		{"mqtt.username", "MOLLUSCADB_MQTT_USERNAME", nil},
		{"mqtt.password", "MOLLUSCADB_MQTT_PASSWORD", nil},
		{"mqtt.topicprefix", "MOLLUSCADB_MQTT_TOPIC_PREFIX", nil},
		{"rules.default", "MOLLUSCADB_RULES_DEFAULT", validateBool},
	}
}

func bindEnv(v *viper.Viper) error {
	var problems []string
	for _, b := range envBindings() {
		if err := v.BindEnv(b.ConfigKey, b.EnvVar); err != nil {
			problems = append(problems, fmt.Sprintf("bind %s: %v", b.EnvVar, err))
			continue
		}
		if b.Validate == nil {
			continue
		}
		if value := os.Getenv(b.EnvVar); value != "" {
			if err := b.Validate(value); err != nil {
				problems = append(problems, fmt.Sprintf("invalid %s=%q: %v", b.EnvVar, value, err))
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// Load reads settings. An empty path searches for molluscadb.yaml in the
// working directory and $HOME/.config/molluscadb; a missing file is not an
// error unless path names it explicitly.
func Load(path string) (Settings, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("molluscadb")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/molluscadb")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}
	if err := bindEnv(v); err != nil {
		return Settings{}, err
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	s.normalize()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s *Settings) normalize() {
	s.Log.Level = strings.ToLower(s.Log.Level)
	s.Log.Format = strings.ToLower(s.Log.Format)
	s.HTTP.AuthMode = strings.ToLower(s.HTTP.AuthMode)
	s.Storage.Driver = strings.ToLower(s.Storage.Driver)
	s.Blob.Driver = strings.ToLower(s.Blob.Driver)
}

// Validate checks cross-field requirements.
func (s Settings) Validate() error {
	var problems []string
	if err := oneOf("memory", "sqlite", "postgres")(s.Storage.Driver); err != nil {
		problems = append(problems, "storage.driver: "+err.Error())
	}
	if err := oneOf("fs", "s3", "memory")(s.Blob.Driver); err != nil {
		problems = append(problems, "blob.driver: "+err.Error())
	}
	if s.Blob.Driver == "s3" && s.Blob.S3.Bucket == "" {
		problems = append(problems, "blob.s3.bucket is required for the s3 driver")
	}
	if err := oneOf("header", "static")(s.HTTP.AuthMode); err != nil {
		problems = append(problems, "http.authmode: "+err.Error())
	}
	if s.HTTP.AuthMode == "static" && s.HTTP.StaticEmail == "" {
		problems = append(problems, "http.staticemail is required for static auth")
	}
	if s.HTTP.AuthMode == "header" && s.HTTP.AuthHeader == "" {
		problems = append(problems, "http.authheader is required for header auth")
	}
	if s.HTTP.SessionTTL <= 0 {
		problems = append(problems, "http.sessionttl must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

func oneOf(allowed ...string) func(string) error {
	return func(value string) error {
		for _, a := range allowed {
			if strings.EqualFold(value, a) {
				return nil
			}
		}
		return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
	}
}

func validateBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean %q", value)
	}
	return nil
}

func validateInt(value string) error {
	if _, err := strconv.Atoi(value); err != nil {
		return fmt.Errorf("invalid integer %q", value)
	}
	return nil
}

func validateDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
