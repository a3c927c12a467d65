package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the main configuration for tourist.
type Config struct {
	HostID      string            `toml:"host_id" validate:"required"`
	BaseDir     string            `toml:"base_dir" validate:"required"`
	LogDir      string            `toml:"log_dir" validate:"required"`
	LogLevel    string            `toml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Database    DatabaseConfig    `toml:"database"`
	Flickr      FlickrConfig      `toml:"flickr"`
	Images      ImagesConfig      `toml:"images"`
	Album       AlbumConfig       `toml:"album"`
	Preferences PreferencesConfig `toml:"preferences"`
	Vaults      []VaultConfig     `toml:"vaults" validate:"dive"`
	Encryption  EncryptionConfig  `toml:"encryption"`
}

// DatabaseConfig represents configuration for the pin and photo database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" validate:"oneof=sqlite memory"`
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"` // only used for type=sqlite
}

// FlickrConfig configures the photo search client.
type FlickrConfig struct {
	APIKey            string  `toml:"api_key" validate:"required"`
	Endpoint          string  `toml:"endpoint" validate:"required,url"`
	PerPage           int     `toml:"per_page" validate:"min=1,max=500"`
	Radius            float64 `toml:"radius" validate:"gt=0,lte=32"` // kilometers
	RequestsPerSecond float64 `toml:"requests_per_second" validate:"gt=0"`
	Burst             int     `toml:"burst" validate:"min=1"`
	TimeoutSeconds    int     `toml:"timeout_seconds" validate:"min=1"`
}

// ImagesConfig configures photo image downloads.
type ImagesConfig struct {
	Size           string `toml:"size" validate:"oneof=s q t m n w z c b"` // Flickr size suffix
	MaxDimension   int    `toml:"max_dimension" validate:"min=0"`          // 0 keeps the original image
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"min=1"`
}

// AlbumConfig configures the photo album view.
type AlbumConfig struct {
	RefreshUnlock string `toml:"refresh_unlock" validate:"oneof=hydrated populated"`
}

// PreferencesConfig locates the user preferences file.
type PreferencesConfig struct {
	Path string `toml:"path" validate:"required"`
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" validate:"oneof=memory s3 filesystem"`
	Name string `toml:"name" validate:"required"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"` // for S3-compatible services
	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" validate:"required_with=S3SecretAccessKey"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" validate:"required_with=S3AccessKeyID"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" validate:"required_if=Type filesystem"`
}

// EncryptionConfig holds paths to the age key pair used to encrypt snapshots.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Flickr REST endpoint used unless overridden.
const DefaultFlickrEndpoint = "https://api.flickr.com/services/rest"

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:   hostID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		LogLevel: "info",
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Flickr: FlickrConfig{
			Endpoint:          DefaultFlickrEndpoint,
			PerPage:           30,
			Radius:            0.5,
			RequestsPerSecond: 1,
			Burst:             1,
			TimeoutSeconds:    30,
		},
		Images: ImagesConfig{
			Size:           "q",
			TimeoutSeconds: 30,
		},
		Album: AlbumConfig{
			RefreshUnlock: "hydrated",
		},
		Preferences: PreferencesConfig{
			Path: filepath.Join(baseDir, "preferences.toml"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "tourist.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "tourist.key"),
		},
	}
}

// Validate checks field ranges and the fields each tagged union requires.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
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

// ReadFromFile reads and validates a Config from the specified file path.
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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
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

// Init validates cfg and writes it to a new config file at path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
