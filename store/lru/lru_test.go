package lru

import (
	"context"
	"testing"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store/mem"
	"github.com/bobg/ardag/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s)
}

func TestHead(t *testing.T) {
	ctx := context.Background()

	t.Run("nested", func(t *testing.T) {
		nested := mem.New()
		s, err := New(nested, 10)
		if err != nil {
			t.Fatal(err)
		}
		testutil.Head(ctx, t, s)

		got, err := nested.Head(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if want := ardag.Blob("second").Ref(); got != want {
			t.Errorf("got nested head %s, want %s", got, want)
		}
	})

	t.Run("local", func(t *testing.T) {
		s, err := New(headless{mem.New()}, 10)
		if err != nil {
			t.Fatal(err)
		}
		testutil.Head(ctx, t, s)
	})
}

func TestEviction(t *testing.T) {
	ctx := context.Background()

	nested := mem.New()
	s, err := New(nested, 2)
	if err != nil {
		t.Fatal(err)
	}

	var refs []ardag.Ref
	for _, b := range []string{"a", "b", "c"} {
		ref, _, err := s.Put(ctx, ardag.Blob(b))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}
	if s.c.Contains(refs[0]) {
		t.Error("oldest blob still cached")
	}

	// Evicted blobs are still reachable through the nested store.
	got, err := s.Get(ctx, refs[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "a" {
		t.Errorf("got %q, want %q", got, "a")
	}
	if !s.c.Contains(refs[0]) {
		t.Error("blob not cached after Get")
	}
}

// Hides the Head and SetHead methods of a mem.Store.
type headless struct {
	s *mem.Store
}

func (h headless) Get(ctx context.Context, ref ardag.Ref) (ardag.Blob, error) {
	return h.s.Get(ctx, ref)
}

func (h headless) ListRefs(ctx context.Context, start ardag.Ref, f func(ardag.Ref) error) error {
	return h.s.ListRefs(ctx, start, f)
}

func (h headless) Put(ctx context.Context, b ardag.Blob) (ardag.Ref, bool, error) {
	return h.s.Put(ctx, b)
}
