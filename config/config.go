package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SourceDefaults is reported by Config.Source when no file was read.
const SourceDefaults = "defaults"

// Config holds application configuration
type Config struct {
	ProtectedPath string `yaml:"protected_path"`
	SnapshotName  string `yaml:"snapshot_name"`

	Honeypots HoneypotConfig  `yaml:"honeypots"`
	Entropy   EntropyConfig   `yaml:"entropy"`
	Grid      GridConfig      `yaml:"grid"`
	Isolation IsolationConfig `yaml:"isolation"`
	Response  ResponseConfig  `yaml:"response"`
	Watcher   WatcherConfig   `yaml:"watcher"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`

	// Source is the file the configuration was read from, or SourceDefaults.
	Source string `yaml:"-"`
}

// HoneypotConfig lists the decoy files written into the protected root.
type HoneypotConfig struct {
	Names []string `yaml:"names"`
	Size  int      `yaml:"size"`
}

// EntropyConfig tunes the content classifier.
type EntropyConfig struct {
	Threshold           float64  `yaml:"threshold"`
	SampleSize          int      `yaml:"sample_size"`
	LockedExtensions    []string `yaml:"locked_extensions"`
	MinSuspiciousEvents uint     `yaml:"min_suspicious_events"`
}

// GridConfig configures the peer alert channel.
type GridConfig struct {
	Port          int    `yaml:"port"`
	BroadcastAddr string `yaml:"broadcast_addr"`
	ListenAddr    string `yaml:"listen_addr"`
	SenderIP      string `yaml:"sender_ip"`
	ThreatType    string `yaml:"threat_type"`
}

// IsolationConfig selects the firewall backend and the blocked range.
type IsolationConfig struct {
	Backend string `yaml:"backend"`
	CIDR    string `yaml:"cidr"`
}

// ResponseConfig configures offender termination and restore copying.
type ResponseConfig struct {
	OffenderSignatures []string `yaml:"offender_signatures"`
	Copier             string   `yaml:"copier"`
}

// WatcherConfig configures the filesystem watch service.
type WatcherConfig struct {
	QueueSize int `yaml:"queue_size"`
}

// LoggingConfig configures the console and file logs.
type LoggingConfig struct {
	Level     string        `yaml:"level"`
	Dir       string        `yaml:"dir"`
	ToFile    bool          `yaml:"to_file"`
	Retention time.Duration `yaml:"retention"`
}

// MetricsConfig configures the Prometheus endpoint and the periodic report.
type MetricsConfig struct {
	Addr          string        `yaml:"addr"`
	StatsInterval time.Duration `yaml:"stats_interval"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		ProtectedPath: "/tmp/devos-lab",
		SnapshotName:  "base_safe_state",
		Honeypots: HoneypotConfig{
			Names: []string{"00_ADMIN_PASSWORD.txt", "AA_CONFIDENTIAL.doc", "ZZ_BACKUP.db"},
			Size:  8192,
		},
		Entropy: EntropyConfig{
			Threshold:           7.0,
			SampleSize:          4096,
			LockedExtensions:    []string{".locked"},
			MinSuspiciousEvents: 1,
		},
		Grid: GridConfig{
			Port:          9000,
			BroadcastAddr: "255.255.255.255",
			ListenAddr:    "0.0.0.0",
			ThreatType:    "RANSOMWARE",
		},
		Isolation: IsolationConfig{
			Backend: "iptables",
			CIDR:    "172.16.0.0/12",
		},
		Response: ResponseConfig{
			OffenderSignatures: []string{"d-ransom"},
			Copier:             "native",
		},
		Watcher: WatcherConfig{
			QueueSize: 2000,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Dir:       "logs",
			ToFile:    true,
			Retention: 7 * 24 * time.Hour,
		},
		Metrics: MetricsConfig{
			StatsInterval: time.Minute,
		},
		Source: SourceDefaults,
	}
}

// Load builds the configuration: defaults, then the YAML file at path, then
// PALADIN_* environment variables (a .env file in the working directory is
// loaded first). A missing file is not an error; Source stays SourceDefaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
			cfg.Source = path
		case errors.Is(err, os.ErrNotExist):
			// fall back to defaults
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.ProtectedPath = getEnv("PALADIN_PROTECTED_PATH", c.ProtectedPath)
	c.SnapshotName = getEnv("PALADIN_SNAPSHOT_NAME", c.SnapshotName)

	c.Honeypots.Names = getListEnv("PALADIN_HONEYPOTS", c.Honeypots.Names)
	c.Honeypots.Size = getIntEnv("PALADIN_HONEYPOT_SIZE", c.Honeypots.Size)

	c.Entropy.Threshold = getFloatEnv("PALADIN_ENTROPY_THRESHOLD", c.Entropy.Threshold)
	c.Entropy.SampleSize = getIntEnv("PALADIN_SAMPLE_SIZE", c.Entropy.SampleSize)
	c.Entropy.LockedExtensions = getListEnv("PALADIN_LOCKED_EXTENSIONS", c.Entropy.LockedExtensions)
	if n := getIntEnv("PALADIN_MIN_SUSPICIOUS_EVENTS", int(c.Entropy.MinSuspiciousEvents)); n > 0 {
		c.Entropy.MinSuspiciousEvents = uint(n)
	} else {
		c.Entropy.MinSuspiciousEvents = 0
	}

	c.Grid.Port = getIntEnv("PALADIN_GRID_PORT", c.Grid.Port)
	c.Grid.BroadcastAddr = getEnv("PALADIN_GRID_BROADCAST_ADDR", c.Grid.BroadcastAddr)
	c.Grid.ListenAddr = getEnv("PALADIN_GRID_LISTEN_ADDR", c.Grid.ListenAddr)
	c.Grid.SenderIP = getEnv("PALADIN_GRID_SENDER_IP", c.Grid.SenderIP)
	c.Grid.ThreatType = getEnv("PALADIN_THREAT_TYPE", c.Grid.ThreatType)

	c.Isolation.Backend = getEnv("PALADIN_FIREWALL_BACKEND", c.Isolation.Backend)
	c.Isolation.CIDR = getEnv("PALADIN_ISOLATION_CIDR", c.Isolation.CIDR)

	c.Response.OffenderSignatures = getListEnv("PALADIN_OFFENDER_SIGNATURES", c.Response.OffenderSignatures)
	c.Response.Copier = getEnv("PALADIN_COPIER", c.Response.Copier)

	c.Watcher.QueueSize = getIntEnv("PALADIN_QUEUE_SIZE", c.Watcher.QueueSize)

	c.Logging.Level = getEnv("PALADIN_LOG_LEVEL", c.Logging.Level)
	c.Logging.Dir = getEnv("PALADIN_LOG_DIR", c.Logging.Dir)
	c.Logging.ToFile = getBoolEnv("PALADIN_LOG_TO_FILE", c.Logging.ToFile)
	c.Logging.Retention = getDurationEnv("PALADIN_LOG_RETENTION", c.Logging.Retention)

	c.Metrics.Addr = getEnv("PALADIN_METRICS_ADDR", c.Metrics.Addr)
	c.Metrics.StatsInterval = getDurationEnv("PALADIN_STATS_INTERVAL", c.Metrics.StatsInterval)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.ProtectedPath) == "" {
		errs = append(errs, errors.New("protected_path is required"))
	}
	if c.SnapshotName == "" || strings.ContainsAny(c.SnapshotName, `/\`) || c.SnapshotName == "." || c.SnapshotName == ".." {
		errs = append(errs, fmt.Errorf("snapshot_name %q is not a plain name", c.SnapshotName))
	}
	if len(c.Honeypots.Names) == 0 {
		errs = append(errs, errors.New("honeypots.names must not be empty"))
	}
	if c.Entropy.Threshold <= 0 || c.Entropy.Threshold > 8 {
		errs = append(errs, fmt.Errorf("entropy.threshold %.2f must be in (0, 8]", c.Entropy.Threshold))
	}
	if c.Entropy.SampleSize <= 0 {
		errs = append(errs, fmt.Errorf("entropy.sample_size %d must be positive", c.Entropy.SampleSize))
	}
	if c.Entropy.MinSuspiciousEvents < 1 {
		errs = append(errs, errors.New("entropy.min_suspicious_events must be at least 1"))
	}
	if c.Grid.Port <= 0 || c.Grid.Port > 65535 {
		errs = append(errs, fmt.Errorf("grid.port %d out of range", c.Grid.Port))
	}
	if net.ParseIP(c.Grid.BroadcastAddr) == nil {
		errs = append(errs, fmt.Errorf("grid.broadcast_addr %q is not an IP address", c.Grid.BroadcastAddr))
	}
	if ip, _, err := net.ParseCIDR(c.Isolation.CIDR); err != nil || ip.To4() == nil {
		errs = append(errs, fmt.Errorf("isolation.cidr %q is not an IPv4 range", c.Isolation.CIDR))
	}
	if c.Isolation.Backend != "iptables" && c.Isolation.Backend != "nftables" {
		errs = append(errs, fmt.Errorf("isolation.backend %q must be iptables or nftables", c.Isolation.Backend))
	}
	if len(c.Response.OffenderSignatures) == 0 {
		errs = append(errs, errors.New("response.offender_signatures must not be empty"))
	}
	if c.Response.Copier != "native" && c.Response.Copier != "rsync" {
		errs = append(errs, fmt.Errorf("response.copier %q must be native or rsync", c.Response.Copier))
	}
	if c.Watcher.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("watcher.queue_size %d must be positive", c.Watcher.QueueSize))
	}

	return errors.Join(errs...)
}

// String renders the configuration as YAML.
func (c Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("Config{ProtectedPath: %s}", c.ProtectedPath)
	}
	return string(data)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, dropping empty items.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
