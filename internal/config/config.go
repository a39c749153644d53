package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the immutable process-wide configuration snapshot. It is read
// once at startup; components receive it (or sub-structs) by value and
// never mutate it.
type Config struct {
	BaseDir  string `toml:"base_dir"`
	LogDir   string `toml:"log_dir"`
	LogLevel string `toml:"log_level"` // "debug", "info" (default), "warn", "error"

	FTP         FTPConfig         `toml:"ftp"`
	VirtualFS   VirtualFSConfig   `toml:"virtual_fs"`
	Credentials CredentialsConfig `toml:"credentials"`
	Storage     StorageConfig     `toml:"storage"`
	Recorder    RecorderConfig    `toml:"recorder"`
	Capture     CaptureConfig     `toml:"capture"`
	Enrichment  EnrichmentConfig  `toml:"enrichment"`
	Export      ExportConfig      `toml:"export"`
}

// FTPConfig is handed to the external protocol engine at startup.
type FTPConfig struct {
	ListenAddr     string `toml:"listen_addr"`
	Port           int    `toml:"port"`
	WelcomeMessage string `toml:"welcome_message"`
	TLSCertPath    string `toml:"tls_cert_path,omitempty"`
	TLSKeyPath     string `toml:"tls_key_path,omitempty"`
}

// VirtualFSConfig seeds and bounds the synthetic filesystem.
type VirtualFSConfig struct {
	Seed       int64 `toml:"seed"`
	MaxDepth   int   `toml:"max_depth"`
	MaxEntries int   `toml:"max_entries"`
}

// CredentialsConfig selects the login decision mode.
type CredentialsConfig struct {
	Mode string `toml:"mode"` // "accept" (default), "reject", "list", "tarpit"
	// Allowed holds "username:password" pairs, only used for mode=list.
	Allowed []string `toml:"allowed,omitempty"`
	// TarpitTries is the per-address rejection count for mode=tarpit.
	TarpitTries int `toml:"tarpit_tries,omitempty"`
	// RatePerMinute caps login attempts per address; 0 disables.
	RatePerMinute int `toml:"rate_per_minute"`
}

// StorageConfig locates the telemetry database.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type StorageConfig struct {
	Type string `toml:"type"` // "sqlite" or "memory"
	Path string `toml:"path,omitempty"`
}

// RecorderConfig tunes the event queue and its persistence behavior.
type RecorderConfig struct {
	QueueCapacity    int    `toml:"queue_capacity"`
	EnqueueTimeoutMS int    `toml:"enqueue_timeout_ms"`
	Backpressure     string `toml:"backpressure"` // "drop" (default) or "block"
	BatchSize        int    `toml:"batch_size"`
	FlushIntervalMS  int    `toml:"flush_interval_ms"`
	RetryBaseMS      int    `toml:"retry_base_ms"`
	RetryMaxMS       int    `toml:"retry_max_ms"`
	GracePeriodS     int    `toml:"grace_period_s"`
}

// CaptureConfig optionally keeps uploaded payloads in a vault.
// This uses a tagged union pattern - the Type field determines which other
// fields are relevant.
type CaptureConfig struct {
	Enabled    bool   `toml:"enabled"`
	LimitBytes int64  `toml:"limit_bytes"` // max payload size kept, default 16MB
	Type       string `toml:"type"`        // "memory", "filesystem" or "s3"
	Name       string `toml:"name"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// EnrichmentConfig configures offline artifact hash lookups against the
// VirusTotal API. Lookups only ever send the hash, never the payload.
type EnrichmentConfig struct {
	Enabled   bool   `toml:"enabled"`
	APIKey    string `toml:"api_key,omitempty"`
	HashURL   string `toml:"hash_url,omitempty"`
	ResultURL string `toml:"result_url,omitempty"`
}

// ExportConfig holds paths to the age key pair used for telemetry bundles.
type ExportConfig struct {
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// NewConfig creates a Config with sane defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		FTP: FTPConfig{
			ListenAddr:     "0.0.0.0",
			Port:           21,
			WelcomeMessage: "FTP server ready.",
		},
		VirtualFS: VirtualFSConfig{
			Seed:       1,
			MaxDepth:   6,
			MaxEntries: 24,
		},
		Credentials: CredentialsConfig{Mode: "accept"},
		Storage: StorageConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "telemetry.db"),
		},
		Recorder: RecorderConfig{
			QueueCapacity:    4096,
			EnqueueTimeoutMS: 50,
			Backpressure:     "drop",
			BatchSize:        128,
			FlushIntervalMS:  1000,
			RetryBaseMS:      100,
			RetryMaxMS:       5000,
			GracePeriodS:     30,
		},
		Capture: CaptureConfig{
			LimitBytes: 16 * 1024 * 1024,
			Type:       "filesystem",
			FSVaultRoot: filepath.Join(baseDir, "artifacts"),
		},
		Enrichment: EnrichmentConfig{
			HashURL:   "https://www.virustotal.com/api/v3/files/",
			ResultURL: "https://www.virustotal.com/gui/file",
		},
		Export: ExportConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "export.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "export.key"),
		},
	}
}

// Validate reports configuration errors that must halt startup.
func (c *Config) Validate() error {
	if c.FTP.Port <= 0 || c.FTP.Port > 65535 {
		return fmt.Errorf("invalid ftp port: %d", c.FTP.Port)
	}
	if (c.FTP.TLSCertPath == "") != (c.FTP.TLSKeyPath == "") {
		return fmt.Errorf("tls_cert_path and tls_key_path must be set together")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}
	switch c.Storage.Type {
	case "sqlite", "":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path required for sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}
	switch c.Recorder.Backpressure {
	case "", "drop", "block":
	default:
		return fmt.Errorf("unknown backpressure mode: %s", c.Recorder.Backpressure)
	}
	switch c.Credentials.Mode {
	case "", "accept", "reject", "list", "tarpit":
	default:
		return fmt.Errorf("unknown credential mode: %s", c.Credentials.Mode)
	}
	if c.Capture.Enabled {
		switch c.Capture.Type {
		case "memory":
		case "filesystem":
			if c.Capture.FSVaultRoot == "" {
				return fmt.Errorf("capture fs_vault_root required for filesystem vault")
			}
		case "s3":
			if c.Capture.S3Bucket == "" {
				return fmt.Errorf("capture s3_bucket required for s3 vault")
			}
		default:
			return fmt.Errorf("unknown capture vault type: %s", c.Capture.Type)
		}
	}
	if c.Enrichment.Enabled {
		if c.Enrichment.APIKey == "" {
			return fmt.Errorf("enrichment api_key required when enrichment is enabled")
		}
		if c.Enrichment.HashURL == "" || c.Enrichment.ResultURL == "" {
			return fmt.Errorf("enrichment hash_url and result_url must be set")
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
