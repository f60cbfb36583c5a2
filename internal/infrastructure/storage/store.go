// Package storage defines where report artifacts are written. The local
// filesystem store is always present; object storage mirrors it when
// uploads are enabled.
package storage

import (
	"context"
	"time"

	"github.com/turtacn/KeyIP-Attribution/internal/infrastructure/monitoring/logging"
)

// Object describes one stored artifact.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	Location     string    `json:"location,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
}

// Store persists artifacts under slash-separated keys.
type Store interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Object, error)
}

// Reader is implemented by stores that can serve artifacts back.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Mirrored writes to primary and then to every mirror. A mirror failure is
// logged and does not fail the write.
type Mirrored struct {
	primary Store
	mirrors []Store
	logger  logging.Logger
}

func NewMirrored(primary Store, logger logging.Logger, mirrors ...Store) *Mirrored {
	return &Mirrored{primary: primary, mirrors: mirrors, logger: logger}
}

func (m *Mirrored) Name() string { return m.primary.Name() }

func (m *Mirrored) Put(ctx context.Context, key string, data []byte, contentType string) (*Object, error) {
	obj, err := m.primary.Put(ctx, key, data, contentType)
	if err != nil {
		return nil, err
	}
	for _, mirror := range m.mirrors {
		if _, err := mirror.Put(ctx, key, data, contentType); err != nil {
			m.logger.Warn("Artifact mirror failed",
				logging.String("store", mirror.Name()),
				logging.String("key", key),
				logging.Err(err))
		}
	}
	return obj, nil
}

func (m *Mirrored) Exists(ctx context.Context, key string) (bool, error) {
	return m.primary.Exists(ctx, key)
}

func (m *Mirrored) List(ctx context.Context, prefix string) ([]Object, error) {
	return m.primary.List(ctx, prefix)
}

// Get reads from the primary store when it supports reads.
func (m *Mirrored) Get(ctx context.Context, key string) ([]byte, error) {
	if r, ok := m.primary.(Reader); ok {
		return r.Get(ctx, key)
	}
	return nil, errNotReadable(m.primary.Name())
}
