package objectstore

import (
	"context"
	"errors"
)

// ErrEmptyReference is returned when a backend accepted an upload but produced no usable URL.
var ErrEmptyReference = errors.New("upload returned no reference url")

// UploadOptions describe where and how an object is stored.
type UploadOptions struct {
	Folder      string
	ContentType string
}

// ObjectStore persists raw image bytes and returns a durable public URL.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, options UploadOptions) (string, error)
}
