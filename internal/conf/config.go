// Package conf loads LeafNet settings from config.yaml, environment variables and flags.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/leafnet/leafnet-go/internal/logger"
	"github.com/leafnet/leafnet-go/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for LeafNet.
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Model        ModelSettings        `yaml:"model" mapstructure:"model"`
	Pipeline     PipelineSettings     `yaml:"pipeline" mapstructure:"pipeline"`
	Storage      StorageSettings      `yaml:"storage" mapstructure:"storage"`
	Database     DatabaseSettings     `yaml:"database" mapstructure:"database"`
	MQTT         MQTTSettings         `yaml:"mqtt" mapstructure:"mqtt"`
	Notification NotificationSettings `yaml:"notification" mapstructure:"notification"`
	Outbox       OutboxSettings       `yaml:"outbox" mapstructure:"outbox"`
	WebServer    WebServerSettings    `yaml:"webserver" mapstructure:"webserver"`
	Sentry       SentrySettings       `yaml:"sentry" mapstructure:"sentry"`
	Logging      logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ModelSettings configures the leaf disease classifier.
type ModelSettings struct {
	Path       string `yaml:"path" mapstructure:"path"`             // path to the .tflite model
	LabelsPath string `yaml:"labelspath" mapstructure:"labelspath"` // optional class_info.json, built-in labels when empty
	Threads    int    `yaml:"threads" mapstructure:"threads"`       // 0 = physical core count
	UseXNNPACK bool   `yaml:"usexnnpack" mapstructure:"usexnnpack"` // enable the XNNPACK delegate
	InputSize  int    `yaml:"inputsize" mapstructure:"inputsize"`   // square input edge in pixels
}

// PipelineSettings configures the image analysis pipeline.
type PipelineSettings struct {
	AlertThreshold float64       `yaml:"alertthreshold" mapstructure:"alertthreshold"` // strict lower bound for alerts
	HealthyLabel   string        `yaml:"healthylabel" mapstructure:"healthylabel"`
	ScratchDir     string        `yaml:"scratchdir" mapstructure:"scratchdir"` // empty = os.TempDir()
	Workers        int           `yaml:"workers" mapstructure:"workers"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"` // per record
	Poll           PollSettings  `yaml:"poll" mapstructure:"poll"`
}

// PollSettings configures the store poller trigger.
type PollSettings struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval  time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize int           `yaml:"batchsize" mapstructure:"batchsize"`
}

// StorageSettings selects and configures the object store backend.
type StorageSettings struct {
	Backend string       `yaml:"backend" mapstructure:"backend"` // gcs, s3 or local
	GCS     GCSSettings  `yaml:"gcs" mapstructure:"gcs"`
	S3      S3Settings   `yaml:"s3" mapstructure:"s3"`
	Local   LocalStorage `yaml:"local" mapstructure:"local"`
}

// GCSSettings configures Google Cloud Storage access.
type GCSSettings struct {
	CredentialsFile string `yaml:"credentialsfile" mapstructure:"credentialsfile"` // empty = application default credentials
	ProjectID       string `yaml:"projectid" mapstructure:"projectid"`
}

// S3Settings configures S3 compatible storage access.
type S3Settings struct {
	Region          string `yaml:"region" mapstructure:"region"`
	Endpoint        string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKeyID     string `yaml:"accesskeyid" mapstructure:"accesskeyid"`
	SecretAccessKey string `yaml:"secretaccesskey" mapstructure:"secretaccesskey"`
	UsePathStyle    bool   `yaml:"usepathstyle" mapstructure:"usepathstyle"`
}

// LocalStorage maps containers to directories below Root.
type LocalStorage struct {
	Root string `yaml:"root" mapstructure:"root"`
}

// DatabaseSettings selects and configures the record store.
type DatabaseSettings struct {
	Type               string         `yaml:"type" mapstructure:"type"` // sqlite or mysql
	SQLite             SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL              MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
	SlowQueryThreshold time.Duration  `yaml:"slowquerythreshold" mapstructure:"slowquerythreshold"`
}

// SQLiteSettings configures the SQLite database.
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MySQLSettings configures the MySQL database.
type MySQLSettings struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Host     string `yaml:"host" mapstructure:"host"`
	Port     string `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
}

// MQTTSettings configures the MQTT broker connection.
type MQTTSettings struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Broker     string `yaml:"broker" mapstructure:"broker"`
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
	ClientID   string `yaml:"clientid" mapstructure:"clientid"`
	EventTopic string `yaml:"eventtopic" mapstructure:"eventtopic"` // incoming image record events
	AlertTopic string `yaml:"alerttopic" mapstructure:"alerttopic"` // outgoing disease alerts
	QoS        byte   `yaml:"qos" mapstructure:"qos"`
	Retain     bool   `yaml:"retain" mapstructure:"retain"`
}

// NotificationSettings configures alert delivery.
type NotificationSettings struct {
	Push PushSettings `yaml:"push" mapstructure:"push"`
}

// PushSettings configures shoutrrr based push delivery.
type PushSettings struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	URLs      []string      `yaml:"urls" mapstructure:"urls"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RateLimit int           `yaml:"ratelimit" mapstructure:"ratelimit"` // max pushes per minute
	Burst     int           `yaml:"burst" mapstructure:"burst"`
}

// OutboxSettings configures the retrying queue for best-effort side effects.
type OutboxSettings struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"` // false = run effects inline
	QueueSize    int           `yaml:"queuesize" mapstructure:"queuesize"`
	MaxRetries   int           `yaml:"maxretries" mapstructure:"maxretries"`
	InitialDelay time.Duration `yaml:"initialdelay" mapstructure:"initialdelay"`
	MaxDelay     time.Duration `yaml:"maxdelay" mapstructure:"maxdelay"`
	Multiplier   float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Listen        string        `yaml:"listen" mapstructure:"listen"`
	CORSOrigins   []string      `yaml:"corsorigins" mapstructure:"corsorigins"`
	StatsCacheTTL time.Duration `yaml:"statscachettl" mapstructure:"statscachettl"`
	MaxUploadSize int64         `yaml:"maxuploadsize" mapstructure:"maxuploadsize"` // bytes
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	Environment string `yaml:"environment" mapstructure:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into a Settings
// instance. configFile overrides the default search paths when non-empty.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, fmt.Errorf("error resolving secrets: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper registers defaults and environment bindings, then reads the config file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Bad environment values are reported but don't stop startup
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig returns the embedded default config.yaml
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the most recently loaded settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// MarshalRedactedYAML renders settings as YAML with secrets masked.
func (s *Settings) MarshalRedactedYAML() ([]byte, error) {
	c := *s
	c.Storage.S3.SecretAccessKey = redact(c.Storage.S3.SecretAccessKey)
	c.Database.MySQL.Password = redact(c.Database.MySQL.Password)
	c.MQTT.Password = redact(c.MQTT.Password)
	c.Sentry.DSN = redact(c.Sentry.DSN)
	if len(c.Notification.Push.URLs) > 0 {
		urls := make([]string, len(c.Notification.Push.URLs))
		for i := range urls {
			urls[i] = redact(c.Notification.Push.URLs[i])
		}
		c.Notification.Push.URLs = urls
	}

	data, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// resolveSecrets expands credential fields that reference environment
// variables or "file:" secret mounts.
func resolveSecrets(s *Settings) error {
	fields := map[string]*string{
		"storage.s3.secretaccesskey": &s.Storage.S3.SecretAccessKey,
		"database.mysql.password":    &s.Database.MySQL.Password,
		"mqtt.password":              &s.MQTT.Password,
		"sentry.dsn":                 &s.Sentry.DSN,
	}
	for i := range s.Notification.Push.URLs {
		fields[fmt.Sprintf("notification.push.urls[%d]", i)] = &s.Notification.Push.URLs[i]
	}

	for key, field := range fields {
		if *field == "" {
			continue
		}
		v, err := secrets.Resolve(*field)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*field = v
	}
	return nil
}
