// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var _ ardag.HeadStore = &Store{}

// Store implements a memory-based least-recently-used cache for a blob store.
// Writes pass through to the underlying blob store.
//
// If the underlying store is an ardag.HeadStore,
// Head and SetHead pass through too.
// Otherwise the head is kept in memory.
type Store struct {
	c *lru.Cache // Ref->Blob
	s ardag.Store

	mu   sync.Mutex
	head ardag.Ref
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s ardag.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, err
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	if got, ok := s.c.Get(ref); ok {
		return got.(ardag.Blob), nil
	}
	blob, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.c.Add(ref, blob)
	return blob, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.c.Add(ref, b)
	return ref, added, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

// Head returns the current root.
func (s *Store) Head(ctx context.Context) (ardag.Ref, error) {
	if hs, ok := s.s.(ardag.HeadStore); ok {
		return hs.Head(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

// SetHead sets the current root.
func (s *Store) SetHead(ctx context.Context, ref ardag.Ref) error {
	if hs, ok := s.s.(ardag.HeadStore); ok {
		return hs.SetHead(ctx, ref)
	}
	s.mu.Lock()
	s.head = ref
	s.mu.Unlock()
	return nil
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (ardag.Store, error) {
		var size int
		switch v := conf["size"].(type) {
		case int:
			size = v
		case float64: // from JSON
			size = int(v)
		default:
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedStore, err := store.FromConfig(ctx, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, size)
	})
}
