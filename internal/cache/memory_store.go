package cache

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process key space. Each store opened on it gets
// its own origin, so two stores on one backend behave like two processes
// sharing Redis.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string]string
	subs map[*memorySub]struct{}
}

type memorySub struct {
	origin string
	ch     chan Change
	done   <-chan struct{}
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: map[string]string{},
		subs: map[*memorySub]struct{}{},
	}
}

// Open returns a store on the backend.
func (b *MemoryBackend) Open() *MemoryStore {
	return &MemoryStore{backend: b, origin: uuid.NewString()}
}

// NewMemoryStore is shorthand for a store on a fresh backend.
func NewMemoryStore() *MemoryStore {
	return NewMemoryBackend().Open()
}

func (b *MemoryBackend) broadcast(change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		if sub.origin == change.Origin {
			continue
		}
		select {
		case sub.ch <- change:
		case <-sub.done:
		default:
			// slow subscriber; drop rather than block writers
		}
	}
}

// MemoryStore is a Store backed by a MemoryBackend.
type MemoryStore struct {
	backend *MemoryBackend
	origin  string
}

// Get returns the value for key and whether it was present.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	v, ok := s.backend.data[key]
	return v, ok, nil
}

// Set writes key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.backend.mu.Lock()
	s.backend.data[key] = value
	s.backend.mu.Unlock()
	s.backend.broadcast(Change{Key: key, NewValue: value, Origin: s.origin})
	return nil
}

// Remove deletes key.
func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.backend.mu.Lock()
	delete(s.backend.data, key)
	s.backend.mu.Unlock()
	s.backend.broadcast(Change{Key: key, Removed: true, Origin: s.origin})
	return nil
}

// Subscribe delivers changes made by other stores on the backend until ctx
// is done.
func (s *MemoryStore) Subscribe(ctx context.Context) (<-chan Change, error) {
	sub := &memorySub{origin: s.origin, ch: make(chan Change, 16), done: ctx.Done()}
	s.backend.mu.Lock()
	s.backend.subs[sub] = struct{}{}
	s.backend.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.backend.mu.Lock()
		delete(s.backend.subs, sub)
		close(sub.ch)
		s.backend.mu.Unlock()
	}()
	return sub.ch, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op; subscriptions end with their contexts.
func (s *MemoryStore) Close() error { return nil }
