package objectstore

import "fmt"

type Config struct {
	Type string `yaml:"type"`
	// Folder groups uploaded samples, e.g. "sand".
	Folder        string      `yaml:"folder"`
	PublicBaseURL string      `yaml:"publicBaseURL"`
	S3            S3Config    `yaml:"s3"`
	Local         LocalConfig `yaml:"local"`
}

func NewObjectStore(config Config) (ObjectStore, error) {
	switch config.Type {
	case "s3":
		return NewS3Store(config.S3, config.PublicBaseURL)
	case "local":
		return NewLocalStore(config.Local, config.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
