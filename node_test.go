package ardag_test

import (
	"context"
	"errors"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	. "github.com/bobg/ardag"
	"github.com/bobg/ardag/store/mem"
)

func TestSnapshotDeterminism(t *testing.T) {
	err := quick.Check(func(m map[string]string) bool {
		var (
			s1 = make(Snapshot)
			s2 = make(Snapshot)
		)
		for tag, val := range m {
			s1[tag] = Blob(val).Ref()
		}
		// Same content, built separately.
		for tag := range m {
			s2[tag] = s1[tag]
		}
		if s1.Ref() != s2.Ref() {
			t.Logf("snapshots with equal content have refs %s and %s", s1.Ref(), s2.Ref())
			return false
		}
		got, err := DecodeSnapshot(s1.Blob())
		if err != nil {
			t.Log(err)
			return false
		}
		if diff := cmp.Diff(s1, got); diff != "" {
			t.Logf("round trip mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}, nil)
	if err != nil {
		t.Error(err)
	}
}

func TestVersionNode(t *testing.T) {
	cases := []VersionNode{
		{Obj: Blob("555-1234").Ref()},
		{Obj: Blob("212-555-1234").Ref(), Prev: VersionNode{Obj: Blob("555-1234").Ref()}.Blob().Ref()},
	}
	for _, want := range cases {
		got, err := DecodeVersionNode(want.Blob())
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got %+v, want %+v", got, want)
		}
	}

	// Kinds are distinct.
	if _, err := DecodeSnapshot(cases[0].Blob()); !errors.Is(err, ErrDecode) {
		t.Errorf("decoding version node as snapshot: got %v, want ErrDecode", err)
	}
	if _, err := DecodeVersionNode(Snapshot{}.Blob()); !errors.Is(err, ErrDecode) {
		t.Errorf("decoding snapshot as version node: got %v, want ErrDecode", err)
	}
	if _, err := DecodeVersionNode(Blob("\xff\xff")); !errors.Is(err, ErrDecode) {
		t.Errorf("decoding garbage: got %v, want ErrDecode", err)
	}
}

func TestVersions(t *testing.T) {
	ctx := context.Background()
	s := mem.New()

	var root Ref
	for _, v := range []string{"one", "two", "three"} {
		stage, err := NewStage(ctx, s, root)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = stage.Add(ctx, "n", Blob(v)); err != nil {
			t.Fatal(err)
		}
		a, err := stage.Commit(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = a.Import(ctx, s); err != nil {
			t.Fatal(err)
		}
		root = a.Root
	}

	snap, err := LoadSnapshot(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	err = Versions(ctx, s, snap["n"], func(_ Ref, node VersionNode) error {
		val, err := s.Get(ctx, node.Obj)
		if err != nil {
			return err
		}
		got = append(got, string(val))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"three", "two", "one"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if _, _, err = Lookup(ctx, s, root, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v looking up missing tag, want ErrNotFound", err)
	}
}
