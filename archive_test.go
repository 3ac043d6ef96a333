package ardag_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"

	. "github.com/bobg/ardag"
	"github.com/bobg/ardag/store/mem"
)

func testBlocks() (Ref, []Blob) {
	var (
		val   = Blob(`{"number":"555-1234"}`)
		vnode = VersionNode{Obj: val.Ref()}.Blob()
		root  = Snapshot{"Mobile": vnode.Ref()}.Blob()
	)
	return root.Ref(), []Blob{val, vnode, root}
}

func TestArchiveDeterminism(t *testing.T) {
	root, blocks := testBlocks()

	a1, err := NewArchive(root, blocks)
	if err != nil {
		t.Fatal(err)
	}

	// Reversed, with a duplicate.
	rev := []Blob{blocks[2], blocks[1], blocks[0], blocks[1]}
	a2, err := NewArchive(root, rev)
	if err != nil {
		t.Fatal(err)
	}

	if a1.ID() != a2.ID() {
		t.Errorf("archive ids differ: %s vs %s", a1.ID(), a2.ID())
	}
	if diff := cmp.Diff(a1.Bytes(), a2.Bytes()); diff != "" {
		t.Errorf("archive bytes differ (-first +second):\n%s", diff)
	}
	if a2.Len() != 3 {
		t.Errorf("got %d blocks, want 3", a2.Len())
	}
	if a1.ID() == a1.Root {
		t.Error("archive id equals root id")
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	root, blocks := testBlocks()

	a, err := NewArchive(root, blocks)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeArchive(a.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if got.Root != a.Root || got.ID() != a.ID() {
		t.Errorf("got root %s id %s, want root %s id %s", got.Root, got.ID(), a.Root, a.ID())
	}

	val, _, err := Lookup(ctx, got, got.Root, "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != `{"number":"555-1234"}` {
		t.Errorf("got %s", val)
	}

	s := mem.New()
	n, err := got.Import(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("imported %d blocks, want 3", n)
	}
	n, err = got.Import(ctx, s)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("reimported %d blocks, want 0", n)
	}
}

func TestArchiveErrors(t *testing.T) {
	root, blocks := testBlocks()

	if _, err := NewArchive(root, blocks[:2]); err == nil {
		t.Error("got no error for archive missing its root")
	}

	var wrongVersion []byte
	wrongVersion = protowire.AppendTag(wrongVersion, 1, protowire.VarintType)
	wrongVersion = protowire.AppendVarint(wrongVersion, 99)
	wrongVersion = protowire.AppendTag(wrongVersion, 2, protowire.BytesType)
	wrongVersion = protowire.AppendBytes(wrongVersion, root[:])

	for name, b := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("not an archive"),
		"version": wrongVersion,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeArchive(b); !errors.Is(err, ErrDecode) {
				t.Errorf("got %v, want ErrDecode", err)
			}
		})
	}
}

func TestOverlay(t *testing.T) {
	ctx := context.Background()
	root, blocks := testBlocks()

	a, err := NewArchive(root, blocks)
	if err != nil {
		t.Fatal(err)
	}
	s := mem.New()
	extra, _, err := s.Put(ctx, Blob("extra"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err = s.Put(ctx, blocks[0]); err != nil {
		t.Fatal(err)
	}

	o := Overlay{a, s}
	for _, ref := range []Ref{root, extra} {
		if ok, err := Has(ctx, o, ref); err != nil || !ok {
			t.Errorf("Has(%s) = %v, %v", ref, ok, err)
		}
	}

	var got []Ref
	err = o.ListRefs(ctx, Zero, func(ref Ref) error {
		got = append(got, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d refs, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].Less(got[i]) {
			t.Errorf("refs out of order: %v", got)
			break
		}
	}
}
