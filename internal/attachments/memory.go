package attachments

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/flexinfer/agentmarket/pkg/types"
)

const memoryScheme = "memory://"

// MemoryStore keeps attachments in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*memoryFile
}

type memoryFile struct {
	ref  types.ArtifactRef
	data []byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]*memoryFile)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data io.Reader, contentType string) (*types.ArtifactRef, error) {
	content, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	ref := types.ArtifactRef{
		URI:         memoryScheme + key,
		ContentType: defaultContentType(contentType),
		Size:        int64(len(content)),
		Checksum:    checksum(content),
		CreatedAt:   time.Now().UTC(),
	}

	m.mu.Lock()
	m.files[key] = &memoryFile{ref: ref, data: content}
	m.mu.Unlock()

	out := ref
	return &out, nil
}

func (m *MemoryStore) Get(ctx context.Context, ref *types.ArtifactRef) (io.ReadCloser, error) {
	key := strings.TrimPrefix(ref.URI, memoryScheme)

	m.mu.RLock()
	f, ok := m.files[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref.URI)
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, ref *types.ArtifactRef) error {
	key := strings.TrimPrefix(ref.URI, memoryScheme)

	m.mu.Lock()
	delete(m.files, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.files {
		if strings.HasPrefix(key, prefix) {
			delete(m.files, key)
		}
	}
	return nil
}

// Len returns the number of stored files.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

var _ Store = (*MemoryStore)(nil)
