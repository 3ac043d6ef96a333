package ardag

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const archiveVersion = 1

var _ Getter = (*Archive)(nil)

// Archive is the self-contained serialization of one committed snapshot:
// its root node plus the blocks introduced by the commit that produced it.
// Blocks from earlier archives are referenced by ref and not repeated.
//
// An Archive is immutable.
type Archive struct {
	// Root is the root id of the archived snapshot.
	Root Ref

	blocks map[Ref]Blob
	refs   []Ref // sorted
	enc    []byte
}

// NewArchive produces the archive for the snapshot with the given root id.
// The root node must be among the blocks.
// Duplicate blocks are stored once.
func NewArchive(root Ref, blocks []Blob) (*Archive, error) {
	a := &Archive{
		Root:   root,
		blocks: make(map[Ref]Blob, len(blocks)),
	}
	for _, b := range blocks {
		ref := b.Ref()
		if _, ok := a.blocks[ref]; ok {
			continue
		}
		a.blocks[ref] = b
		a.refs = append(a.refs, ref)
	}
	if _, ok := a.blocks[root]; !ok {
		return nil, errors.Errorf("root %s not among archive blocks", root)
	}
	sort.Slice(a.refs, func(i, j int) bool { return a.refs[i].Less(a.refs[j]) })

	var enc []byte
	enc = protowire.AppendTag(enc, 1, protowire.VarintType)
	enc = protowire.AppendVarint(enc, archiveVersion)
	enc = protowire.AppendTag(enc, 2, protowire.BytesType)
	enc = protowire.AppendBytes(enc, root[:])
	for _, ref := range a.refs {
		enc = protowire.AppendTag(enc, 3, protowire.BytesType)
		enc = protowire.AppendBytes(enc, a.blocks[ref])
	}
	a.enc = enc

	return a, nil
}

// DecodeArchive parses the bytes produced by Archive.Bytes.
// Every block's ref is recomputed from its content.
// Errors wrap ErrDecode.
func DecodeArchive(b []byte) (*Archive, error) {
	var (
		root    Ref
		gotRoot bool
		version uint64
		blocks  []Blob
	)
	for rest := b; len(rest) > 0; {
		num, typ, n := protowire.ConsumeTag(rest)
		if n < 0 {
			return nil, errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
		}
		rest = rest[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			version, n = protowire.ConsumeVarint(rest)

		case num == 2 && typ == protowire.BytesType:
			var val []byte
			val, n = protowire.ConsumeBytes(rest)
			if n >= 0 {
				if len(val) != len(root) {
					return nil, errors.Wrap(ErrDecode, "malformed archive root")
				}
				root, gotRoot = RefFromBytes(val), true
			}

		case num == 3 && typ == protowire.BytesType:
			var val []byte
			val, n = protowire.ConsumeBytes(rest)
			if n >= 0 {
				blocks = append(blocks, Blob(append([]byte{}, val...)))
			}

		default:
			n = protowire.ConsumeFieldValue(num, typ, rest)
		}
		if n < 0 {
			return nil, errors.Wrap(ErrDecode, protowire.ParseError(n).Error())
		}
		rest = rest[n:]
	}

	if version != archiveVersion {
		return nil, errors.Wrapf(ErrDecode, "archive version %d, want %d", version, archiveVersion)
	}
	if !gotRoot {
		return nil, errors.Wrap(ErrDecode, "archive has no root")
	}

	a, err := NewArchive(root, blocks)
	if err != nil {
		return nil, errors.Wrap(ErrDecode, err.Error())
	}
	return a, nil
}

// Bytes is the encoding of a.
// It is deterministic:
// equal roots and block sets always produce identical bytes.
func (a *Archive) Bytes() []byte {
	return a.enc
}

// ID is the archive id: the ref of a's encoding.
// It differs from a.Root.
func (a *Archive) ID() Ref {
	return Blob(a.enc).Ref()
}

// Len is the number of blocks in a.
func (a *Archive) Len() int {
	return len(a.refs)
}

// Snapshot decodes a's root node.
func (a *Archive) Snapshot() (Snapshot, error) {
	return DecodeSnapshot(a.blocks[a.Root])
}

// Get implements Getter.
func (a *Archive) Get(_ context.Context, ref Ref) (Blob, error) {
	if b, ok := a.blocks[ref]; ok {
		return b, nil
	}
	return nil, ErrNotFound
}

// ListRefs implements Getter.
func (a *Archive) ListRefs(_ context.Context, start Ref, f func(Ref) error) error {
	index := sort.Search(len(a.refs), func(n int) bool {
		return start.Less(a.refs[n])
	})
	for _, ref := range a.refs[index:] {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

// Import adds every block of a to s.
// Blocks already present in s are left alone,
// so importing the same archive twice,
// or importing archives in any order,
// yields the same store contents.
// It returns the number of blocks newly added.
func (a *Archive) Import(ctx context.Context, s Store) (int, error) {
	blobs := make([]Blob, 0, len(a.refs))
	for _, ref := range a.refs {
		blobs = append(blobs, a.blocks[ref])
	}
	added, err := PutMulti(ctx, s, blobs)
	if err != nil {
		return 0, errors.Wrapf(err, "importing archive %s", a.Root)
	}
	var n int
	for _, ok := range added {
		if ok {
			n++
		}
	}
	return n, nil
}

// Overlay is a Getter that consults a list of Getters in order.
type Overlay []Getter

// Get implements Getter.
func (o Overlay) Get(ctx context.Context, ref Ref) (Blob, error) {
	for _, g := range o {
		b, err := g.Get(ctx, ref)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return b, err
	}
	return nil, ErrNotFound
}

// ListRefs implements Getter.
// A ref present in more than one of the nested Getters is reported once.
func (o Overlay) ListRefs(ctx context.Context, start Ref, f func(Ref) error) error {
	seen := make(map[Ref]struct{})
	for _, g := range o {
		err := g.ListRefs(ctx, start, func(ref Ref) error {
			seen[ref] = struct{}{}
			return nil
		})
		if err != nil {
			return err
		}
	}
	refs := make([]Ref, 0, len(seen))
	for ref := range seen {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	for _, ref := range refs {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}
