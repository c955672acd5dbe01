// Package memory provides an in-memory blob store implementation,
// intended for tests and development.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/docdepot/docdepot/pkg/docdepot"
)

type memoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates a new in-memory blob store.
func New() docdepot.BlobStore {
	return &memoryBackend{blobs: make(map[string][]byte)}
}

func (b *memoryBackend) Upload(ctx context.Context, key string, reader io.Reader) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[key] = data
	return nil
}

func (b *memoryBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, docdepot.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBackend) Exists(ctx context.Context, key string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blobs[key]
	return ok, nil
}

func (b *memoryBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blobs, key)
	return nil
}
