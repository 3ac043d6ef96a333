package gc_test

import (
	"context"
	"testing"

	"github.com/bobg/ardag"
	. "github.com/bobg/ardag/gc"
	"github.com/bobg/ardag/store/mem"
)

func commit(ctx context.Context, t *testing.T, s ardag.Store, root ardag.Ref, values map[string]string) ardag.Ref {
	t.Helper()

	stage, err := ardag.NewStage(ctx, s, root)
	if err != nil {
		t.Fatal(err)
	}
	for tag, val := range values {
		if _, err = stage.Add(ctx, tag, ardag.Blob(val)); err != nil {
			t.Fatal(err)
		}
	}
	a, err := stage.Commit(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = a.Import(ctx, s); err != nil {
		t.Fatal(err)
	}
	return a.Root
}

func TestGC(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		keepFirst bool
		want      int
	}{
		{name: "latest", want: 3},
		{name: "both", keepFirst: true, want: 2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := mem.New()

			root1 := commit(ctx, t, s, ardag.Zero, map[string]string{"a": "1", "b": "2"})
			root2 := commit(ctx, t, s, root1, map[string]string{"a": "3"})

			for _, junk := range []string{"junk1", "junk2"} {
				if _, _, err := s.Put(ctx, ardag.Blob(junk)); err != nil {
					t.Fatal(err)
				}
			}

			k := NewMemKeep()
			if err := AddSnapshot(ctx, k, s, root2); err != nil {
				t.Fatal(err)
			}
			if c.keepFirst {
				if err := AddSnapshot(ctx, k, s, root1); err != nil {
					t.Fatal(err)
				}
			}

			n, err := Run(ctx, s, k)
			if err != nil {
				t.Fatal(err)
			}
			if n != c.want {
				t.Errorf("deleted %d blobs, want %d", n, c.want)
			}

			for tag, want := range map[string]string{"a": "3", "b": "2"} {
				got, _, err := ardag.Lookup(ctx, s, root2, tag)
				if err != nil {
					t.Fatalf("looking up %s: %s", tag, err)
				}
				if string(got) != want {
					t.Errorf("got %s=%q, want %q", tag, got, want)
				}
			}

			snap, err := ardag.LoadSnapshot(ctx, s, root2)
			if err != nil {
				t.Fatal(err)
			}
			var nvers int
			err = ardag.Versions(ctx, s, snap["a"], func(_ ardag.Ref, node ardag.VersionNode) error {
				if _, err := s.Get(ctx, node.Obj); err != nil {
					return err
				}
				nvers++
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if nvers != 2 {
				t.Errorf("got %d versions of a, want 2", nvers)
			}

			_, err = ardag.LoadSnapshot(ctx, s, root1)
			if c.keepFirst && err != nil {
				t.Errorf("first snapshot was collected: %s", err)
			}
			if !c.keepFirst && err == nil {
				t.Error("first snapshot survived")
			}
		})
	}
}

func TestMemKeep(t *testing.T) {
	ctx := context.Background()
	k := NewMemKeep()
	ref := ardag.Blob("foo").Ref()

	if added, err := k.Add(ctx, ref); err != nil || !added {
		t.Fatalf("first Add: added=%v err=%v", added, err)
	}
	if added, err := k.Add(ctx, ref); err != nil || added {
		t.Fatalf("second Add: added=%v err=%v", added, err)
	}
	if ok, _ := k.Contains(ctx, ref); !ok {
		t.Error("ref not contained")
	}
	if ok, _ := k.Contains(ctx, ardag.Blob("bar").Ref()); ok {
		t.Error("unexpected ref contained")
	}
	if k.Len() != 1 {
		t.Errorf("got Len %d, want 1", k.Len())
	}
}
