package ardag

import (
	"context"
	stderrs "errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its ref.
	// It returns ErrNotFound if the blob is absent.
	Get(context.Context, Ref) (Blob, error)

	// ListRefs calls a function for each blob ref in the store in lexicographic order,
	// beginning with the first ref _after_ the specified one.
	//
	// The calls reflect at least the set of refs
	// known at the moment ListRefs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListRefs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(r Ref) error) error
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its "ref" as a lookup key.
// A ref is simply the SHA2-256 hash of the blob's content.
//
// Stores are additive:
// putting a blob that is already present is a no-op,
// which is what makes replaying ledger history in any order converge.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}

// HeadStore is a Store that also remembers a "current root,"
// the latest snapshot root known to be durably published.
type HeadStore interface {
	Store

	// Head returns the current root,
	// or Zero if none has been set.
	Head(context.Context) (Ref, error)

	// SetHead sets the current root.
	SetHead(context.Context, Ref) error
}

// Has tells whether g contains a blob with the given ref.
func Has(ctx context.Context, g Getter, ref Ref) (bool, error) {
	_, err := g.Get(ctx, ref)
	if stderrs.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
