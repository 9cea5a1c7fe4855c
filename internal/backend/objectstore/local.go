package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type LocalConfig struct {
	Directory string `yaml:"directory"`
	// MountPath is the HTTP route prefix the directory is served from.
	MountPath string `yaml:"mountPath"`
}

// LocalStore writes objects below a directory, for development setups without S3.
type LocalStore struct {
	directory     string
	publicBaseURL string
}

func NewLocalStore(config LocalConfig, publicBaseURL string) (*LocalStore, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("local storage directory must be set")
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", config.Directory, err)
	}
	return &LocalStore{
		directory:     config.Directory,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (s *LocalStore) Upload(ctx context.Context, data []byte, options UploadOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, err := generateKey(options.Folder, options.ContentType)
	if err != nil {
		return "", fmt.Errorf("failed to generate object key: %w", err)
	}

	target := filepath.Join(s.directory, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder for %s: %w", key, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}

	return joinURL(s.publicBaseURL, key), nil
}
