package storage

import (
	"strings"

	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

var ErrObjectNotFound = errors.New(errors.ErrCodeNotFound, "object not found")

func errNotReadable(store string) error {
	return errors.New(errors.ErrCodeStorageReadFailed, "store does not support reads").WithDetail(store)
}

// CleanKey rejects absolute keys and parent traversal.
func CleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.ReplaceAll(key, "\\", "/"), "/")
	if k == "" {
		return "", errors.InvalidParam("empty object key")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." {
			return "", errors.InvalidParam("object key escapes the store root").WithDetail(key)
		}
	}
	return k, nil
}
