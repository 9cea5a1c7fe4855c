package core

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/jo-hoe/sandmap/internal/backend/objectstore"
	"github.com/jo-hoe/sandmap/internal/backend/queue"
	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Timeouts bound every call to an external collaborator.
type Timeouts struct {
	Storage  time.Duration `yaml:"storage"`
	Database time.Duration `yaml:"database"`
	Queue    time.Duration `yaml:"queue"`
}

type Maintenance struct {
	// StaleAfter is the default age after which an unprocessed submission counts as orphaned.
	StaleAfter time.Duration `yaml:"staleAfter"`
}

type ServiceConfig struct {
	Port          int                `yaml:"port"`
	MaxUploadSize string             `yaml:"maxUploadSize"`
	Logging       Logging            `yaml:"logging"`
	Database      Database           `yaml:"database"`
	Storage       objectstore.Config `yaml:"storage"`
	Queue         queue.Config       `yaml:"queue"`
	Timeouts      Timeouts           `yaml:"timeouts"`
	Maintenance   Maintenance        `yaml:"maintenance"`
}

// LoadConfig loads configuration from the specified YAML file.
// ${VAR} references are expanded from the environment before parsing.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(expandEnv(data), &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

var envReference = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} with its value and leaves a bare $ untouched.
func expandEnv(data []byte) []byte {
	return envReference.ReplaceAllFunc(data, func(reference []byte) []byte {
		return []byte(os.Getenv(string(reference[2 : len(reference)-1])))
	})
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = 4321
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "20M"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.ConnectionString == "" {
		c.Database.ConnectionString = "file:sandmap.db"
	}
	if c.Storage.Folder == "" {
		c.Storage.Folder = "sand"
	}
	if c.Storage.Local.MountPath == "" {
		c.Storage.Local.MountPath = "/uploads"
	}
	if c.Queue.Type == "" {
		c.Queue.Type = "redis"
	}
	if c.Queue.Name == "" {
		c.Queue.Name = "sand-samples"
	}
	if c.Timeouts.Storage == 0 {
		c.Timeouts.Storage = 30 * time.Second
	}
	if c.Timeouts.Database == 0 {
		c.Timeouts.Database = 5 * time.Second
	}
	if c.Timeouts.Queue == 0 {
		c.Timeouts.Queue = 5 * time.Second
	}
	if c.Maintenance.StaleAfter == 0 {
		c.Maintenance.StaleAfter = time.Hour
	}
}

// validate ensures all sections have the fields their backend needs
func (c *ServiceConfig) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}

	switch c.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.ConnectionString == "" {
		return fmt.Errorf("database connectionString must be set")
	}

	switch c.Storage.Type {
	case "s3":
		if c.Storage.S3.Bucket == "" || c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3 requires bucket and region")
		}
	case "local":
		if c.Storage.Local.Directory == "" {
			return fmt.Errorf("storage.local requires directory")
		}
		if c.Storage.PublicBaseURL == "" {
			return fmt.Errorf("storage.local requires publicBaseURL")
		}
	default:
		return fmt.Errorf("unsupported storage type: %q", c.Storage.Type)
	}

	if c.Queue.Type != "redis" {
		return fmt.Errorf("unsupported queue type: %s", c.Queue.Type)
	}
	if c.Queue.Address == "" {
		return fmt.Errorf("queue address must be set")
	}
	if c.Queue.Retention < 0 {
		return fmt.Errorf("queue retention must not be negative")
	}

	if c.Timeouts.Storage < 0 || c.Timeouts.Database < 0 || c.Timeouts.Queue < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Maintenance.StaleAfter < 0 {
		return fmt.Errorf("maintenance staleAfter must not be negative")
	}

	return nil
}
