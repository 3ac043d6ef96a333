// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

var (
	_ ardag.HeadStore   = &Store{}
	_ ardag.MultiGetter = &Store{}
	_ ardag.MultiPutter = &Store{}
)

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu    sync.Mutex
	blobs map[ardag.Ref]ardag.Blob
	head  ardag.Ref
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[ardag.Ref]ardag.Blob),
	}
}

// Get gets the blob with hash `ref`.
func (s *Store) Get(_ context.Context, ref ardag.Ref) (ardag.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(ref)
}

// Caller must obtain a lock.
func (s *Store) get(ref ardag.Ref) (ardag.Blob, error) {
	if b, ok := s.blobs[ref]; ok {
		return b, nil
	}
	return nil, ardag.ErrNotFound
}

// Delete removes the blob with hash `ref`.
// Deleting a missing blob is not an error.
func (s *Store) Delete(_ context.Context, ref ardag.Ref) error {
	s.mu.Lock()
	delete(s.blobs, ref)
	s.mu.Unlock()
	return nil
}

// GetMulti gets multiple blobs in one call.
// Missing refs are reported in an ardag.MultiErr.
func (s *Store) GetMulti(_ context.Context, refs []ardag.Ref) (map[ardag.Ref]ardag.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result = make(map[ardag.Ref]ardag.Blob)
		errmap ardag.MultiErr
	)
	for _, ref := range refs {
		b, err := s.get(ref)
		if err != nil {
			if errmap == nil {
				errmap = make(ardag.MultiErr)
			}
			errmap[ref] = err
			continue
		}
		result[ref] = b
	}
	if errmap != nil {
		return result, errmap
	}
	return result, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref, added := s.put(b)
	return ref, added, nil
}

// Caller must obtain a lock.
func (s *Store) put(b ardag.Blob) (ardag.Ref, bool) {
	var added bool

	r := b.Ref()
	if _, ok := s.blobs[r]; !ok {
		s.blobs[r] = b
		added = true
	}

	return r, added
}

// PutMulti adds multiple blobs to the store in one call.
func (s *Store) PutMulti(_ context.Context, blobs []ardag.Blob) (map[ardag.Ref]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make(map[ardag.Ref]bool, len(blobs))
	for _, b := range blobs {
		ref, added := s.put(b)
		result[ref] = result[ref] || added
	}
	return result, nil
}

// ListRefs produces all blob refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	s.mu.Lock()
	refs := make([]ardag.Ref, 0, len(s.blobs))
	for ref := range s.blobs {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Head returns the current root.
func (s *Store) Head(context.Context) (ardag.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head, nil
}

// SetHead sets the current root.
func (s *Store) SetHead(_ context.Context, ref ardag.Ref) error {
	s.mu.Lock()
	s.head = ref
	s.mu.Unlock()
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (ardag.Store, error) {
		return New(), nil
	})
}
