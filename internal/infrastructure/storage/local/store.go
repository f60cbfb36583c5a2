// Package local stores artifacts on a filesystem rooted at the output
// directory.
package local

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/storage"
	"github.com/turtacn/KeyIP-Attribution/pkg/errors"
)

// Store writes under root on fs.
type Store struct {
	fs     afero.Fs
	root   string
	logger logging.Logger
}

// New returns a store on the OS filesystem.
func New(root string, logger logging.Logger) *Store {
	return NewWithFs(afero.NewOsFs(), root, logger)
}

// NewWithFs returns a store on fs (tests use afero.NewMemMapFs).
func NewWithFs(fs afero.Fs, root string, logger logging.Logger) *Store {
	return &Store{fs: fs, root: filepath.Clean(root), logger: logger}
}

func (s *Store) Name() string { return "local" }

// Root is the directory keys are resolved against.
func (s *Store) Root() string { return s.root }

func (s *Store) resolve(key string) (string, string, error) {
	k, err := storage.CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (*storage.Object, error) {
	k, p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWriteFailed, "failed to create artifact directory").WithDetail(k)
	}
	if err := afero.WriteFile(s.fs, p, data, 0o644); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageWriteFailed, "failed to write artifact").WithDetail(k)
	}
	s.logger.Debug("Artifact written", logging.String("key", k), logging.Int("bytes", len(data)))
	return &storage.Object{Key: k, Size: int64(len(data)), ContentType: contentType, Location: p}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	k, p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(s.fs, p)
	if os.IsNotExist(err) {
		return nil, storage.ErrObjectNotFound.WithDetail(k)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageReadFailed, "failed to read artifact").WithDetail(k)
	}
	return data, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, p, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(s.fs, p)
}

// List walks every file whose key starts with prefix, in key order.
func (s *Store) List(ctx context.Context, prefix string) ([]storage.Object, error) {
	out := []storage.Object{}
	exists, err := afero.DirExists(s.fs, s.root)
	if err != nil || !exists {
		return out, err
	}
	err = afero.Walk(s.fs, s.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		out = append(out, storage.Object{
			Key:          key,
			Size:         info.Size(),
			ContentType:  contentTypeFor(key),
			Location:     p,
			LastModified: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageReadFailed, "failed to list artifacts").WithDetail(prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func contentTypeFor(key string) string {
	switch path.Ext(key) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".svg":
		return "image/svg+xml"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
