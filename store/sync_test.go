package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ardag"
	. "github.com/bobg/ardag/store"
	"github.com/bobg/ardag/store/mem"
)

func TestSync(t *testing.T) {
	const text = `abc def ghi jkl mno pqr stu`

	var (
		ctx    = context.Background()
		words  = strings.Fields(text)
		stores = make([]ardag.Store, 0, len(words))
	)
	for i := range words {
		s := mem.New()
		stores = append(stores, s)
		for j, word := range words {
			if i == j {
				continue
			}

			_, _, err := s.Put(ctx, ardag.Blob(word))
			if err != nil {
				t.Fatal(err)
			}
		}
	}

	err := Sync(ctx, stores)
	if err != nil {
		t.Fatal(err)
	}

	var refs []ardag.Ref
	err = stores[0].ListRefs(ctx, ardag.Ref{}, func(ref ardag.Ref) error {
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i < len(stores); i++ {
		s := stores[i]
		var refs2 []ardag.Ref
		err = s.ListRefs(ctx, ardag.Ref{}, func(ref ardag.Ref) error {
			refs2 = append(refs2, ref)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(refs, refs2); diff != "" {
			t.Errorf("store %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSyncReplicas(t *testing.T) {
	ctx := context.Background()

	// Three commits, each archive imported into a different replica.
	stage, err := ardag.NewStage(ctx, mem.New(), ardag.Zero)
	if err != nil {
		t.Fatal(err)
	}
	var archives []*ardag.Archive
	for _, values := range []map[string]string{
		{"Mobile": "1", "Landline": "2"},
		{"Mobile": "3"},
		{"Email": "4"},
	} {
		for tag, val := range values {
			if _, err = stage.Add(ctx, tag, ardag.Blob(val)); err != nil {
				t.Fatal(err)
			}
		}
		a, err := stage.Commit(ctx)
		if err != nil {
			t.Fatal(err)
		}
		archives = append(archives, a)
	}

	var (
		replicas []ardag.Store
		heads    []ardag.Ref
	)
	for _, a := range archives {
		s := mem.New()
		if _, err = a.Import(ctx, s); err != nil {
			t.Fatal(err)
		}
		if err = s.SetHead(ctx, a.Root); err != nil {
			t.Fatal(err)
		}
		replicas = append(replicas, s)
		heads = append(heads, a.Root)
	}

	if err = Sync(ctx, replicas); err != nil {
		t.Fatal(err)
	}

	root := archives[len(archives)-1].Root
	want := map[string]string{"Mobile": "3", "Landline": "2", "Email": "4"}
	for i, s := range replicas {
		for tag, w := range want {
			got, _, err := ardag.Lookup(ctx, s, root, tag)
			if err != nil {
				t.Fatalf("replica %d, tag %s: %s", i, tag, err)
			}
			if string(got) != w {
				t.Errorf("replica %d, tag %s: got %q, want %q", i, tag, got, w)
			}
		}
		head, err := s.(ardag.HeadStore).Head(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if head != heads[i] {
			t.Errorf("replica %d head moved from %s to %s", i, heads[i], head)
		}
	}
}
