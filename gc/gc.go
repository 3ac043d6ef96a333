// Package gc prunes a local replica store
// down to the blocks reachable from a set of snapshots.
// The ledger is never affected:
// anything pruned can be reloaded from the owner's history.
package gc

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
)

// Store is a store that can delete blobs.
type Store interface {
	ardag.Getter
	Delete(context.Context, ardag.Ref) error
}

// Keep is a set of refs to protect from garbage collection.
type Keep interface {
	// Add adds a single ref to the Keep.
	// It returns true if it was newly added and false if it was already present.
	Add(context.Context, ardag.Ref) (bool, error)

	// Contains tells whether a ref is in the Keep.
	Contains(context.Context, ardag.Ref) (bool, error)
}

// MemKeep is an in-memory Keep.
type MemKeep struct {
	mu sync.Mutex
	m  map[ardag.Ref]struct{}
}

// NewMemKeep produces an empty MemKeep.
func NewMemKeep() *MemKeep {
	return &MemKeep{m: make(map[ardag.Ref]struct{})}
}

// Add implements Keep.
func (k *MemKeep) Add(_ context.Context, ref ardag.Ref) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.m[ref]; ok {
		return false, nil
	}
	k.m[ref] = struct{}{}
	return true, nil
}

// Contains implements Keep.
func (k *MemKeep) Contains(_ context.Context, ref ardag.Ref) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.m[ref]
	return ok, nil
}

// Len is the number of refs in k.
func (k *MemKeep) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}

// Run runs a garbage collection on s,
// with k the set of refs to keep.
// It returns the number of blobs deleted.
func Run(ctx context.Context, s Store, k Keep) (int, error) {
	var doomed []ardag.Ref
	err := s.ListRefs(ctx, ardag.Zero, func(ref ardag.Ref) error {
		found, err := k.Contains(ctx, ref)
		if err != nil {
			return err
		}
		if !found {
			doomed = append(doomed, ref)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "listing refs")
	}
	for i, ref := range doomed {
		if err = s.Delete(ctx, ref); err != nil {
			return i, errors.Wrapf(err, "deleting %s", ref)
		}
	}
	return len(doomed), nil
}

// AddSnapshot adds to k the snapshot with root id root,
// plus every version node in the chains of its tags
// and every value those nodes refer to.
// Everything needed must be in g.
func AddSnapshot(ctx context.Context, k Keep, g ardag.Getter, root ardag.Ref) error {
	added, err := k.Add(ctx, root)
	if err != nil {
		return errors.Wrapf(err, "adding %s", root)
	}
	if !added {
		return nil
	}

	snap, err := ardag.LoadSnapshot(ctx, g, root)
	if err != nil {
		return errors.Wrapf(err, "loading snapshot %s", root)
	}
	for _, tag := range snap.Tags() {
		err = ardag.Versions(ctx, g, snap[tag], func(ref ardag.Ref, node ardag.VersionNode) error {
			added, err := k.Add(ctx, ref)
			if err != nil {
				return errors.Wrapf(err, "adding %s", ref)
			}
			if _, err = k.Add(ctx, node.Obj); err != nil {
				return errors.Wrapf(err, "adding %s", node.Obj)
			}
			if !added {
				// The rest of this chain is already kept.
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			return errors.Wrapf(err, "walking versions of %s", tag)
		}
	}
	return nil
}

var errStop = errors.New("stop")
