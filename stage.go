package ardag

import (
	"context"
	"encoding/json"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/pkg/errors"
)

// Stage holds pending tag/value mutations on top of a base snapshot
// until they are committed together into one Archive.
//
// A Stage is not safe for concurrent use.
// There should be one Stage per owner at a time.
type Stage struct {
	g    Getter
	base Snapshot
	adds []stagedAdd

	// Refs of the values in base's history.
	// Nil until first needed.
	known map[Ref]struct{}
}

type stagedAdd struct {
	tag   string
	node  Ref
	value Blob
	vnode Blob
}

// NewStage produces a Stage on top of the snapshot with root id root,
// which must be in g together with the version nodes it refers to.
// A Zero root means there is no history yet.
func NewStage(ctx context.Context, g Getter, root Ref) (*Stage, error) {
	base := make(Snapshot)
	if !root.IsZero() {
		var err error
		base, err = LoadSnapshot(ctx, g, root)
		if err != nil {
			return nil, errors.Wrapf(err, "loading base snapshot %s", root)
		}
	}
	return &Stage{g: g, base: base}, nil
}

// Len is the number of staged adds.
func (s *Stage) Len() int {
	return len(s.adds)
}

// Head returns the ref and content of the latest VersionNode for tag,
// counting staged adds.
// The boolean is false if the tag has no versions.
func (s *Stage) Head(ctx context.Context, tag string) (Ref, VersionNode, bool, error) {
	for i := len(s.adds) - 1; i >= 0; i-- {
		a := s.adds[i]
		if a.tag != tag {
			continue
		}
		node, err := DecodeVersionNode(a.vnode)
		return a.node, node, true, err
	}
	ref, ok := s.base[tag]
	if !ok {
		return Zero, VersionNode{}, false, nil
	}
	node, err := LoadVersionNode(ctx, s.g, ref)
	if err != nil {
		return Zero, VersionNode{}, false, errors.Wrapf(err, "loading version node %s for %s", ref, tag)
	}
	return ref, node, true, nil
}

// Add stages value as the new version of tag.
// Its VersionNode links back to the tag's current head, if any.
// The return value is the ref of the new VersionNode.
func (s *Stage) Add(ctx context.Context, tag string, value Blob) (Ref, error) {
	prev, _, _, err := s.Head(ctx, tag)
	if err != nil {
		return Zero, err
	}
	vnode := VersionNode{Obj: value.Ref(), Prev: prev}.Blob()
	ref := vnode.Ref()
	s.adds = append(s.adds, stagedAdd{
		tag:   tag,
		node:  ref,
		value: value,
		vnode: vnode,
	})
	return ref, nil
}

// AddJSON stages the canonical JSON encoding of v as the new version of tag.
// Equal values always have equal encodings and therefore equal refs.
func (s *Stage) AddJSON(ctx context.Context, tag string, v interface{}) (Ref, error) {
	b, err := EncodeJSON(v)
	if err != nil {
		return Zero, err
	}
	return s.Add(ctx, tag, b)
}

// Set is like Add but skips values that would not change the tag:
// if value's ref equals the Obj of the tag's current head,
// the add is undone and Set reports false together with the existing head's ref.
func (s *Stage) Set(ctx context.Context, tag string, value Blob) (Ref, bool, error) {
	prev, prevNode, ok, err := s.Head(ctx, tag)
	if err != nil {
		return Zero, false, err
	}
	ref, err := s.Add(ctx, tag, value)
	if err != nil {
		return Zero, false, err
	}
	if ok && prevNode.Obj == value.Ref() {
		if err = s.Undo(); err != nil {
			return Zero, false, err
		}
		return prev, false, nil
	}
	return ref, true, nil
}

// Undo removes the most recent staged add,
// restoring the previous head of its tag.
// Earlier adds are not affected.
func (s *Stage) Undo() error {
	if len(s.adds) == 0 {
		return ErrNothingStaged
	}
	s.adds[len(s.adds)-1] = stagedAdd{}
	s.adds = s.adds[:len(s.adds)-1]
	return nil
}

// Commit finalizes the staged adds into one snapshot and returns its Archive.
// Tags not touched by any staged add carry forward from the base snapshot.
//
// The archive contains the new root node,
// every staged VersionNode,
// and each staged value that no version in the base snapshot's history points to.
// Values already in that history are referenced by ref only.
// A value merely present in the Stage's Getter is still included,
// since the Getter may hold blobs from other owners' histories.
//
// After Commit, nothing is staged,
// and the Stage's base is the newly committed snapshot.
// Commit with nothing staged returns ErrEmptyCommit.
func (s *Stage) Commit(ctx context.Context) (*Archive, error) {
	if len(s.adds) == 0 {
		return nil, ErrEmptyCommit
	}

	known, err := s.knownValues(ctx)
	if err != nil {
		return nil, err
	}

	snap := s.base.Clone()
	blocks := make([]Blob, 0, 1+2*len(s.adds))
	for _, a := range s.adds {
		snap[a.tag] = a.node
		blocks = append(blocks, a.vnode)
		if _, ok := known[a.value.Ref()]; !ok {
			blocks = append(blocks, a.value)
		}
	}

	rootBlob := snap.Blob()
	blocks = append(blocks, rootBlob)

	a, err := NewArchive(rootBlob.Ref(), blocks)
	if err != nil {
		return nil, errors.Wrap(err, "building archive")
	}

	for _, add := range s.adds {
		known[add.value.Ref()] = struct{}{}
	}
	s.g = Overlay{a, s.g}
	s.base = snap
	s.adds = nil

	return a, nil
}

// Produces the set of values some version node in the base snapshot points to.
// Those are the only values an archive may leave out:
// g may hold blobs from other histories,
// and an archive must not depend on them.
// A chain that cannot be followed to its end contributes the nodes that could be loaded.
func (s *Stage) knownValues(ctx context.Context) (map[Ref]struct{}, error) {
	if s.known != nil {
		return s.known, nil
	}
	known := make(map[Ref]struct{})
	for _, tag := range s.base.Tags() {
		err := Versions(ctx, s.g, s.base[tag], func(_ Ref, node VersionNode) error {
			known[node.Obj] = struct{}{}
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, errors.Wrapf(err, "walking versions of %s", tag)
		}
	}
	s.known = known
	return known, nil
}

// EncodeJSON produces the canonical JSON encoding of v.
func EncodeJSON(v interface{}) (Blob, error) {
	b, err := canonicaljson.Marshal(v)
	return b, errors.Wrap(err, "encoding canonical JSON")
}

// DecodeJSON parses a JSON value blob into v.
func DecodeJSON(b Blob, v interface{}) error {
	return errors.Wrap(json.Unmarshal(b, v), "decoding JSON value")
}
