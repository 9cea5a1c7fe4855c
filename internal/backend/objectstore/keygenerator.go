package objectstore

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

var extensionsByContentType = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
}

// generateKey builds a collision free object key below the given folder.
func generateKey(folder, contentType string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}

	name := id.String() + extensionsByContentType[strings.ToLower(contentType)]
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name, nil
	}
	return path.Join(folder, name), nil
}

// joinURL appends a key to a base URL without doubling slashes.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
