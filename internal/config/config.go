package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "wwbridge.cfg.json"

// SupportedConfigVersions is the constraint a config file's configVersion must satisfy.
const SupportedConfigVersions = ">= 1.0.0, < 2.0.0"

// EnvPrefix is prepended to environment variable overrides.
const EnvPrefix = "WWBRIDGE"

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("configVersion", "1.0.0")
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("debug", false)

	viper.SetDefault("receiver.host", "127.0.0.1")
	viper.SetDefault("receiver.port", 7780)
	viper.SetDefault("receiver.bufferSize", 4096)

	viper.SetDefault("scheduler.activeInterval", "10ms")
	viper.SetDefault("scheduler.idleInterval", "1s")
	viper.SetDefault("scheduler.livenessTimeout", "2s")

	viper.SetDefault("tracker.aoaOnset", 15.0)
	viper.SetDefault("tracker.touchdownThreshold", 0.1)
	viper.SetDefault("tracker.suppressReleaseOnGround", false)

	viper.SetDefault("effects.continuousGrace", 1)

	viper.SetDefault("effects.gun.attack", "5ms")
	viper.SetDefault("effects.gun.sustain", "40ms")
	viper.SetDefault("effects.gun.decay", "35ms")
	viper.SetDefault("effects.gun.peak", 1.0)

	viper.SetDefault("effects.release.attack", "5ms")
	viper.SetDefault("effects.release.sustain", "60ms")
	viper.SetDefault("effects.release.decay", "35ms")
	viper.SetDefault("effects.release.gainPerKg", 0.0015)
	viper.SetDefault("effects.release.min", 0.55)
	viper.SetDefault("effects.release.max", 1.0)
	viper.SetDefault("effects.release.unknownPeak", 0.86)

	viper.SetDefault("effects.wobble.deadband", 0.05)
	viper.SetDefault("effects.wobble.saturation", 0.8)
	viper.SetDefault("effects.wobble.floor", 0.18)

	viper.SetDefault("effects.transit.level", 0.25)

	viper.SetDefault("effects.clunk.attack", "5ms")
	viper.SetDefault("effects.clunk.sustain", "50ms")
	viper.SetDefault("effects.clunk.decay", "45ms")
	viper.SetDefault("effects.clunk.peak", 0.6)

	viper.SetDefault("effects.aoa.onset", 15.0)
	viper.SetDefault("effects.aoa.full", 35.0)
	viper.SetDefault("effects.aoa.suppressOnGround", true)

	viper.SetDefault("effects.impact.attack", "0s")
	viper.SetDefault("effects.impact.sustain", "100ms")
	viper.SetDefault("effects.impact.decay", "50ms")
	viper.SetDefault("effects.impact.gain", 4.0)
	viper.SetDefault("effects.impact.min", 0.6)
	viper.SetDefault("effects.impact.max", 1.0)

	viper.SetDefault("aircraft.override", "")
	viper.SetDefault("aircraft.supported", []string{})

	viper.SetDefault("device.vendorId", DefaultVendorID)
	viper.SetDefault("device.reportSize", DefaultReportSize)
	viper.SetDefault("device.refreshInterval", "1s")
	viper.SetDefault("device.writeTimeout", "50ms")

	viper.SetDefault("monitor.activeInterval", "5s")
	viper.SetDefault("monitor.idleInterval", "30s")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "wwbridge")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "wwbridge")
	viper.SetDefault("influx.backupPath", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("nats.enabled", false)
	viper.SetDefault("nats.url", "nats://127.0.0.1:4222")
	viper.SetDefault("nats.subjectPrefix", "wwbridge")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./sessions")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./sessions/wwbridge.db")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "wwbridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", false)
	viper.SetDefault("otel.metricInterval", "30s")
}

// Load reads configuration from the JSON file in configDir and sets default values.
func Load(configDir string) error {
	return LoadFile(filepath.Join(configDir, FileName))
}

// LoadFile reads configuration from an explicit file path.
func LoadFile(path string) error {
	SetDefaults()

	viper.SetConfigFile(path)
	viper.SetConfigType("json")
	viper.SetEnvPrefix(EnvPrefix)
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return CheckVersion(viper.GetString("configVersion"))
}

// ErrUnsupportedVersion is returned for a configVersion outside SupportedConfigVersions.
var ErrUnsupportedVersion = errors.New("unsupported config version")

// CheckVersion validates a config schema version.
func CheckVersion(v string) error {
	version, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid configVersion %q: %w", v, err)
	}
	constraint, err := semver.NewConstraint(SupportedConfigVersions)
	if err != nil {
		return err
	}
	if !constraint.Check(version) {
		return fmt.Errorf("%w: %s (want %s)", ErrUnsupportedVersion, v, SupportedConfigVersions)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// ReceiverConfig holds the UDP listener settings.
type ReceiverConfig struct {
	Host       string
	Port       int
	BufferSize int
}

// GetReceiverConfig returns the receiver configuration.
func GetReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Host:       viper.GetString("receiver.host"),
		Port:       viper.GetInt("receiver.port"),
		BufferSize: viper.GetInt("receiver.bufferSize"),
	}
}

// SchedulerConfig holds loop cadence settings.
type SchedulerConfig struct {
	ActiveInterval  time.Duration
	IdleInterval    time.Duration
	LivenessTimeout time.Duration
}

// GetSchedulerConfig returns the scheduler configuration.
func GetSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ActiveInterval:  viper.GetDuration("scheduler.activeInterval"),
		IdleInterval:    viper.GetDuration("scheduler.idleInterval"),
		LivenessTimeout: viper.GetDuration("scheduler.livenessTimeout"),
	}
}

// TrackerConfig holds state tracker thresholds.
type TrackerConfig struct {
	AoaOnset                float64
	TouchdownThreshold      float64
	SuppressReleaseOnGround bool
}

// GetTrackerConfig returns the tracker configuration.
func GetTrackerConfig() TrackerConfig {
	return TrackerConfig{
		AoaOnset:                viper.GetFloat64("tracker.aoaOnset"),
		TouchdownThreshold:      viper.GetFloat64("tracker.touchdownThreshold"),
		SuppressReleaseOnGround: viper.GetBool("tracker.suppressReleaseOnGround"),
	}
}

// AircraftConfig holds LED resolution settings.
type AircraftConfig struct {
	Override  string
	Supported []string
}

// GetAircraftConfig returns the aircraft resolution configuration.
func GetAircraftConfig() AircraftConfig {
	return AircraftConfig{
		Override:  viper.GetString("aircraft.override"),
		Supported: viper.GetStringSlice("aircraft.supported"),
	}
}

// MonitorConfig holds the status reporting cadence.
type MonitorConfig struct {
	ActiveInterval time.Duration
	IdleInterval   time.Duration
}

// GetMonitorConfig returns the monitor configuration.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ActiveInterval: viper.GetDuration("monitor.activeInterval"),
		IdleInterval:   viper.GetDuration("monitor.idleInterval"),
	}
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool
	ServiceName    string
	BatchTimeout   time.Duration
	Endpoint       string
	Insecure       bool
	Metrics        bool
	MetricInterval time.Duration
}

// GetOTelConfig returns the OpenTelemetry configuration.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		Metrics:        viper.GetBool("otel.metrics"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GraylogConfig holds GELF output settings.
type GraylogConfig struct {
	Enabled bool
	Address string
}

// GetGraylogConfig returns the Graylog configuration.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// NatsConfig holds event publishing settings.
type NatsConfig struct {
	Enabled       bool
	URL           string
	SubjectPrefix string
}

// GetNatsConfig returns the NATS configuration.
func GetNatsConfig() NatsConfig {
	return NatsConfig{
		Enabled:       viper.GetBool("nats.enabled"),
		URL:           viper.GetString("nats.url"),
		SubjectPrefix: viper.GetString("nats.subjectPrefix"),
	}
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	BackupPath string
}

// GetInfluxConfig returns the InfluxDB configuration.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SqliteConfig holds SQLite storage backend settings.
type SqliteConfig struct {
	Path         string
	DumpInterval time.Duration
	DumpPath     string
}

// PostgresConfig holds the Postgres connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// DSN renders the connection string.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		c.Host, c.Port, c.Username, c.Password, c.Database)
}

// StorageConfig selects and configures the session storage backend.
type StorageConfig struct {
	Type     string
	Memory   MemoryConfig
	Sqlite   SqliteConfig
	Postgres PostgresConfig
}

// GetStorageConfig returns the storage configuration.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		Sqlite: SqliteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}
