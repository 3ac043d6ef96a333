package ardag

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger"
)

// Writer is the write path for one owner:
// it stages values,
// commits them into an archive,
// publishes the archive,
// and only then records the result locally.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	store     HeadStore
	publisher *Publisher
	base      Ref
}

// Save is the result of a successful Writer.Save.
type Save struct {
	Publication

	// Changed lists the tags that got new versions.
	Changed []string

	// Unchanged lists the tags whose values were already current.
	Unchanged []string
}

// NewWriter produces a Writer that keeps its local copy in store
// and appends to the ledger with publisher.
//
// The first snapshot it saves builds on the one with root id base.
// That must be the current root of the publisher's own history,
// such as BuildResult.Root from building that owner into store,
// or Zero for an owner with no history yet.
// The store's head is not consulted:
// a store can hold several owners' histories,
// and its head is whichever was built or saved last.
func NewWriter(store HeadStore, publisher *Publisher, base Ref) (*Writer, error) {
	if store == nil {
		return nil, errors.New("no store")
	}
	if publisher == nil {
		return nil, errors.New("no publisher")
	}
	return &Writer{store: store, publisher: publisher, base: base}, nil
}

// Base is the root id the next Save builds on.
func (w *Writer) Base() Ref {
	return w.base
}

// Save commits values as one snapshot on top of w's base and publishes it.
// Tags not in values carry forward unchanged.
// Values equal to a tag's current value are not re-added.
// If no tag changes the result is ErrEmptyCommit and nothing is published.
//
// Nothing local changes until the publish succeeds.
// A publish failure (ErrPublishFailed) leaves the store and w's base untouched.
func (w *Writer) Save(ctx context.Context, values map[string]Blob, extra ...ledger.Tag) (*Save, error) {
	stage, err := NewStage(ctx, w.store, w.base)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(values))
	for tag := range values {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	result := new(Save)
	for _, tag := range tags {
		_, changed, err := stage.Set(ctx, tag, values[tag])
		if err != nil {
			return nil, errors.Wrapf(err, "staging %s", tag)
		}
		if changed {
			result.Changed = append(result.Changed, tag)
		} else {
			result.Unchanged = append(result.Unchanged, tag)
		}
	}

	a, err := stage.Commit(ctx)
	if err != nil {
		return nil, err
	}

	pub, err := w.publisher.Publish(ctx, a, extra...)
	if err != nil {
		return nil, err
	}
	result.Publication = *pub

	w.base = a.Root

	if _, err = a.Import(ctx, w.store); err != nil {
		return nil, errors.Wrapf(err, "storing published archive %s", pub.EntryID)
	}
	if err = w.store.SetHead(ctx, a.Root); err != nil {
		return nil, errors.Wrapf(err, "setting head after publishing %s", pub.EntryID)
	}

	return result, nil
}

// SaveJSON is like Save but takes values to be encoded as canonical JSON.
func (w *Writer) SaveJSON(ctx context.Context, values map[string]interface{}, extra ...ledger.Tag) (*Save, error) {
	blobs := make(map[string]Blob, len(values))
	for tag, v := range values {
		b, err := EncodeJSON(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding %s", tag)
		}
		blobs[tag] = b
	}
	return w.Save(ctx, blobs, extra...)
}
