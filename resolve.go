package ardag

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// Resolver answers queries about an owner's current values
// by scanning the ledger lazily,
// without building a replica.
type Resolver struct {
	scanner *Scanner
	fetcher ledger.Fetcher

	// Logf logs skipped entries.
	// If nil, log.Printf is used.
	Logf func(string, ...interface{})
}

// Query is what to resolve.
// With neither field set,
// the result is the owner's latest snapshot.
type Query struct {
	// Tag, if set, selects the current value of that tag.
	Tag string

	// Pinned, if set, selects the value with this ref,
	// in preference to the one Tag points to.
	Pinned Ref
}

// Resolution is the answer to a Query.
type Resolution struct {
	// Entry is the ledger entry whose snapshot answered the query.
	// For a query with only Pinned set,
	// it is the entry whose archive held the value.
	Entry ledger.Entry

	// Root is the root id of Entry's snapshot.
	Root Ref

	// Snapshot is Entry's snapshot.
	Snapshot Snapshot

	// Node and Version are the tag's version node and its ref.
	// They are unset when the query has no Tag.
	Node    Ref
	Version VersionNode

	// Value is the resolved value.
	// It is unset when the query has neither Tag nor Pinned.
	Value Blob
}

// NewResolver produces a Resolver that finds entries with scanner
// and gets their payloads with fetcher.
func NewResolver(scanner *Scanner, fetcher ledger.Fetcher) (*Resolver, error) {
	if scanner == nil {
		return nil, errors.New("no scanner")
	}
	if fetcher == nil {
		return nil, errors.New("no fetcher")
	}
	return &Resolver{scanner: scanner, fetcher: fetcher}, nil
}

func (r *Resolver) logf(format string, args ...interface{}) {
	if r.Logf != nil {
		r.Logf(format, args...)
	} else {
		log.Printf(format, args...)
	}
}

var errStop = errors.New("stop")

// Calls f with each decodable archive in owner's history,
// together with the growing Getter holding every archive decoded so far.
// Each page of the scan is taken newest first (see ledger.Entry.Newer),
// so within a page the order agrees with the one Builder uses.
// Undecodable entries are logged and skipped.
// If f returns errStop the scan ends early with a nil error.
func (r *Resolver) each(ctx context.Context, owner ledger.Owner, f func(ledger.Entry, *Archive, Getter) error) error {
	var scratch Overlay
	err := r.scanner.ScanPages(ctx, owner, func(entries []ledger.Entry) error {
		entries = append([]ledger.Entry(nil), entries...)
		ledger.SortNewestFirst(entries)

		for _, e := range entries {
			a, err := LoadEntry(ctx, r.fetcher, e)
			if errors.Is(err, ErrPayloadFetch) || errors.Is(err, ErrDecode) {
				r.logf("skipping entry %s: %s", e.ID, err)
				continue
			}
			if err != nil {
				return err
			}
			scratch = append(scratch, a)
			if err = f(e, a, scratch); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

// Resolve answers q using owner's history.
//
// With no Tag and no Pinned,
// the answer is the first decodable snapshot in scan order,
// where each page of results is taken newest first.
// Across pages the backend's own newest-first order is trusted:
// a backend that lists entries out of order
// can make Resolve answer from an older snapshot than Builder would choose.
// With Tag,
// the first snapshot containing the tag supplies the version node,
// and the value is the node's Obj,
// or Pinned if that is set.
// With only Pinned,
// the value is the blob with that ref wherever in the history it appears.
//
// Blobs a snapshot refers to may live in older entries.
// When a pointer cannot be resolved from the entries decoded so far,
// Resolve keeps scanning older ones.
// The scan stops as soon as the answer is complete.
//
// An exhausted scan produces ErrNotFound,
// which is distinct from ErrHistoryUnavailable.
func (r *Resolver) Resolve(ctx context.Context, owner ledger.Owner, q Query) (*Resolution, error) {
	var (
		res      *Resolution
		captured bool
		resolved bool
	)

	err := r.each(ctx, owner, func(e ledger.Entry, a *Archive, g Getter) error {
		if !captured {
			snap, err := a.Snapshot()
			if err != nil {
				r.logf("skipping entry %s: %s", e.ID, err)
				return nil
			}
			switch {
			case q.Tag != "":
				node, ok := snap[q.Tag]
				if !ok {
					return nil
				}
				res = &Resolution{Entry: e, Root: a.Root, Snapshot: snap, Node: node}
				captured = true

			case q.Pinned.IsZero():
				res, resolved = &Resolution{Entry: e, Root: a.Root, Snapshot: snap}, true
				return errStop

			default:
				if _, err := a.Get(ctx, q.Pinned); err != nil {
					return nil
				}
				res = &Resolution{Entry: e, Root: a.Root, Snapshot: snap}
				captured = true
			}
		}

		ok, err := r.complete(ctx, g, q, res)
		if err != nil {
			return err
		}
		if ok {
			resolved = true
			return errStop
		}
		return nil
	})

	if resolved {
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if q.Tag != "" {
		return nil, errors.Wrapf(ErrNotFound, "resolving %s for %s", q.Tag, owner)
	}
	return nil, errors.Wrapf(ErrNotFound, "resolving %s for %s", q.Pinned, owner)
}

// Tries to fill in the version node and value of res from g.
// Reports false if some blob is not (yet) available.
func (r *Resolver) complete(ctx context.Context, g Getter, q Query, res *Resolution) (bool, error) {
	obj := q.Pinned
	if q.Tag != "" {
		node, err := LoadVersionNode(ctx, g, res.Node)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, errors.Wrapf(err, "loading version node %s for %s", res.Node, q.Tag)
		}
		res.Version = node
		if obj.IsZero() {
			obj = node.Obj
		}
	}
	val, err := g.Get(ctx, obj)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting value %s", obj)
	}
	res.Value = val
	return true, nil
}

// Get resolves the current value of tag in owner's history.
func (r *Resolver) Get(ctx context.Context, owner ledger.Owner, tag string) (Blob, error) {
	res, err := r.Resolve(ctx, owner, Query{Tag: tag})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// GetJSON resolves the current value of tag in owner's history
// and parses it as JSON into v.
func (r *Resolver) GetJSON(ctx context.Context, owner ledger.Owner, tag string, v interface{}) error {
	val, err := r.Get(ctx, owner, tag)
	if err != nil {
		return err
	}
	return DecodeJSON(val, v)
}

// Latest resolves owner's latest snapshot.
func (r *Resolver) Latest(ctx context.Context, owner ledger.Owner) (*Resolution, error) {
	return r.Resolve(ctx, owner, Query{})
}

// History calls f for each version of tag in owner's history,
// newest first,
// with the version node's ref, the node, and its value.
// Like Resolve it decodes only as many entries as it needs.
// If f returns an error,
// History exits with that error.
//
// A tag the history does not contain produces ErrNotFound.
// So does a version chain that cannot be followed to its end.
func (r *Resolver) History(ctx context.Context, owner ledger.Owner, tag string, f func(Ref, VersionNode, Blob) error) error {
	var (
		next  Ref // next version node to deliver
		found bool
		done  bool
		fErr  error
	)

	err := r.each(ctx, owner, func(e ledger.Entry, a *Archive, g Getter) error {
		if !found {
			snap, err := a.Snapshot()
			if err != nil {
				r.logf("skipping entry %s: %s", e.ID, err)
				return nil
			}
			ref, ok := snap[tag]
			if !ok {
				return nil
			}
			next, found = ref, true
		}

		for !next.IsZero() {
			node, err := LoadVersionNode(ctx, g, next)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "loading version node %s for %s", next, tag)
			}
			val, err := g.Get(ctx, node.Obj)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return errors.Wrapf(err, "getting value %s for %s", node.Obj, tag)
			}
			if err = f(next, node, val); err != nil {
				fErr = err
				return errStop
			}
			next = node.Prev
		}
		done = true
		return errStop
	})
	if fErr != nil {
		return fErr
	}
	if done {
		return nil
	}
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(ErrNotFound, "no history for %s", tag)
	}
	return errors.Wrapf(ErrNotFound, "history of %s is broken at %s", tag, next)
}
