package ardag

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Node kinds, stored in field 1 of every encoded node.
const (
	kindSnapshot = 1
	kindVersion  = 2
)

// VersionNode is the unit stored per tag in a snapshot.
// Obj is the ref of the tag's value.
// Prev is the ref of the tag's previous VersionNode,
// or Zero if this is the tag's first version.
type VersionNode struct {
	Obj  Ref
	Prev Ref
}

// Blob encodes n.
func (n VersionNode) Blob() Blob {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, kindVersion)
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, n.Obj[:])
	if !n.Prev.IsZero() {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, n.Prev[:])
	}
	return b
}

// DecodeVersionNode parses the encoding produced by VersionNode.Blob.
func DecodeVersionNode(b Blob) (VersionNode, error) {
	var (
		n      VersionNode
		gotObj bool
	)
	err := eachField(b, kindVersion, func(num protowire.Number, typ protowire.Type, val []byte) error {
		switch num {
		case 2:
			if len(val) != len(Ref{}) {
				return errors.New("malformed obj ref")
			}
			n.Obj = RefFromBytes(val)
			gotObj = true
		case 3:
			if len(val) != len(Ref{}) {
				return errors.New("malformed prev ref")
			}
			n.Prev = RefFromBytes(val)
		}
		return nil
	})
	if err != nil {
		return VersionNode{}, errors.Wrap(err, "decoding version node")
	}
	if !gotObj {
		return VersionNode{}, errors.Wrap(ErrDecode, "version node has no obj")
	}
	return n, nil
}

// LoadVersionNode gets the VersionNode at ref from g.
func LoadVersionNode(ctx context.Context, g Getter, ref Ref) (VersionNode, error) {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return VersionNode{}, err
	}
	return DecodeVersionNode(b)
}

// Snapshot maps each tag to the ref of its latest VersionNode.
// Its encoding is a snapshot root node,
// whose ref is the snapshot's root id.
type Snapshot map[string]Ref

// Tags returns the tags of s in sorted order.
func (s Snapshot) Tags() []string {
	tags := make([]string, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Blob encodes s.
// The encoding is deterministic:
// equal snapshots produce identical bytes and therefore identical refs.
func (s Snapshot) Blob() Blob {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, kindSnapshot)
	for _, tag := range s.Tags() {
		ref := s[tag]

		var entry []byte
		entry = protowire.AppendTag(entry, 1, protowire.BytesType)
		entry = protowire.AppendString(entry, tag)
		entry = protowire.AppendTag(entry, 2, protowire.BytesType)
		entry = protowire.AppendBytes(entry, ref[:])

		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

// Ref is the root id of s.
func (s Snapshot) Ref() Ref {
	return s.Blob().Ref()
}

// Clone produces a copy of s that can be modified independently.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for tag, ref := range s {
		out[tag] = ref
	}
	return out
}

// DecodeSnapshot parses the encoding produced by Snapshot.Blob.
func DecodeSnapshot(b Blob) (Snapshot, error) {
	s := make(Snapshot)
	err := eachField(b, kindSnapshot, func(num protowire.Number, typ protowire.Type, val []byte) error {
		if num != 2 {
			return nil
		}
		var (
			tag    string
			ref    Ref
			gotTag bool
			gotRef bool
		)
		err := eachSubfield(val, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch num {
			case 1:
				tag, gotTag = string(val), true
			case 2:
				if len(val) != len(Ref{}) {
					return errors.New("malformed version node ref")
				}
				ref, gotRef = RefFromBytes(val), true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if !gotTag || !gotRef {
			return errors.New("incomplete snapshot entry")
		}
		s[tag] = ref
		return nil
	})
	return s, errors.Wrap(err, "decoding snapshot")
}

// LoadSnapshot gets the Snapshot with root id ref from g.
func LoadSnapshot(ctx context.Context, g Getter, ref Ref) (Snapshot, error) {
	b, err := g.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return DecodeSnapshot(b)
}

// Lookup finds the current value of tag in the snapshot with root id root.
// All the needed blobs must be in g.
// It returns ErrNotFound if the snapshot has no such tag.
func Lookup(ctx context.Context, g Getter, root Ref, tag string) (Blob, VersionNode, error) {
	snap, err := LoadSnapshot(ctx, g, root)
	if err != nil {
		return nil, VersionNode{}, errors.Wrapf(err, "loading snapshot %s", root)
	}
	nodeRef, ok := snap[tag]
	if !ok {
		return nil, VersionNode{}, ErrNotFound
	}
	node, err := LoadVersionNode(ctx, g, nodeRef)
	if err != nil {
		return nil, VersionNode{}, errors.Wrapf(err, "loading version node %s for %s", nodeRef, tag)
	}
	val, err := g.Get(ctx, node.Obj)
	if err != nil {
		return nil, node, errors.Wrapf(err, "getting value %s for %s", node.Obj, tag)
	}
	return val, node, nil
}

// Versions calls f for the VersionNode at ref and each of its predecessors,
// newest first.
// If f returns an error,
// Versions exits with that error.
func Versions(ctx context.Context, g Getter, ref Ref, f func(Ref, VersionNode) error) error {
	for !ref.IsZero() {
		node, err := LoadVersionNode(ctx, g, ref)
		if err != nil {
			return errors.Wrapf(err, "loading version node %s", ref)
		}
		if err = f(ref, node); err != nil {
			return err
		}
		ref = node.Prev
	}
	return nil
}

// Calls f for each field of b after checking that field 1 holds the wanted kind.
// Errors are wrapped with ErrDecode.
func eachField(b []byte, kind uint64, f func(protowire.Number, protowire.Type, []byte) error) error {
	num, typ, n := protowire.ConsumeTag(b)
	if n < 0 {
		return errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
	}
	if num != 1 || typ != protowire.VarintType {
		return errors.Wrap(ErrDecode, "missing node kind")
	}
	b = b[n:]
	got, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
	}
	if got != kind {
		return errors.Wrapf(ErrDecode, "node kind %d, want %d", got, kind)
	}
	return eachSubfield(b[n:], f)
}

// Calls f for each field of b.
// Varint field values are passed to f as nil.
// Errors are wrapped with ErrDecode.
func eachSubfield(b []byte, f func(protowire.Number, protowire.Type, []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
		}
		b = b[n:]

		var val []byte
		if typ == protowire.BytesType {
			val, n = protowire.ConsumeBytes(b)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
		}
		b = b[n:]

		if err := f(num, typ, val); err != nil {
			if errors.Is(err, ErrDecode) {
				return err
			}
			return errors.Wrap(ErrDecode, err.Error())
		}
	}
	return nil
}
