package queue

import (
	"context"
	"time"
)

// RetainForever disables message expiry.
const RetainForever time.Duration = 0

// Queue accepts text payloads for deferred, at-least-once delivery to the worker.
type Queue interface {
	// Send enqueues body. A retention of RetainForever keeps the message until it is consumed.
	Send(ctx context.Context, body string, retention time.Duration) error
	Close() error
}

// Connector establishes a Queue handle.
type Connector func(ctx context.Context) (Queue, error)

type Config struct {
	Type     string `yaml:"type"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Name     string `yaml:"name"`
	// Retention of dispatched messages; zero retains them forever.
	Retention time.Duration `yaml:"retention"`
}
