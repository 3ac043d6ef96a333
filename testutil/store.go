package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ardag"
)

// ReadWrite permits testing a Store implementation
// by importing a committed archive into it,
// then reading values back out to make sure they're the same.
func ReadWrite(ctx context.Context, t *testing.T, store ardag.Store) {
	values := map[string]ardag.Blob{
		"Mobile":   ardag.Blob("555-1234"),
		"Landline": ardag.Blob("+1-555-555-5555"),
		"Empty":    ardag.Blob(""),
	}

	stage, err := ardag.NewStage(ctx, store, ardag.Zero)
	if err != nil {
		t.Fatal(err)
	}
	for tag, val := range values {
		if _, err = stage.Add(ctx, tag, val); err != nil {
			t.Fatal(err)
		}
	}
	a, err := stage.Commit(ctx)
	if err != nil {
		t.Fatal(err)
	}

	n, err := a.Import(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != a.Len() {
		t.Errorf("imported %d new blocks, want %d", n, a.Len())
	}

	for tag, want := range values {
		got, _, err := ardag.Lookup(ctx, store, a.Root, tag)
		if err != nil {
			t.Fatalf("looking up %s: %s", tag, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("got %s = %q, want %q", tag, got, want)
		}
	}

	n, err = a.Import(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("reimport added %d blocks, want 0", n)
	}

	var want []ardag.Ref
	err = a.ListRefs(ctx, ardag.Zero, func(ref ardag.Ref) error {
		want = append(want, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, ref := range want {
		ok, err := ardag.Has(ctx, store, ref)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("block %s missing after import", ref)
		}
	}

	if _, err = store.Get(ctx, ardag.Blob("nonexistent").Ref()); !errors.Is(err, ardag.ErrNotFound) {
		t.Errorf("got %v getting nonexistent blob, want ErrNotFound", err)
	}
}

// AllRefs writes a random set of random blobs to an empty store
// and makes sure that the right set of refs comes back in a call to ListRefs.
func AllRefs(ctx context.Context, t *testing.T, storeFactory func() ardag.Store) {
	if err := quick.Check(allRefsHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allRefsHelper(ctx context.Context, t *testing.T, storeFactory func() ardag.Store) func([]ardag.Blob) bool {
	return func(blobs []ardag.Blob) bool {
		var (
			store = storeFactory()
			want  []ardag.Ref
		)
		for _, blob := range blobs {
			ref, added, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, ref)
			}
		}
		var got []ardag.Ref
		err := store.ListRefs(ctx, ardag.Zero, func(r ardag.Ref) error {
			got = append(got, r)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}

// Head checks that a HeadStore starts with no head
// and remembers the last one set.
func Head(ctx context.Context, t *testing.T, store ardag.HeadStore) {
	got, err := store.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsZero() {
		t.Fatalf("got initial head %s, want zero", got)
	}

	for _, s := range []string{"first", "second"} {
		want := ardag.Blob(s).Ref()
		if err = store.SetHead(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, err = store.Head(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("got head %s, want %s", got, want)
		}
	}
}
