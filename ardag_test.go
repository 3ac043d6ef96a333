package ardag_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	. "github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/store/mem"
)

func TestUpdateOneTag(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	w := newWriter(t, l, 1)

	first := w.save(ctx, t, map[string]string{"Mobile": "555-1234"})
	second := w.save(ctx, t, map[string]string{"Mobile": "212-555-1234"})
	if first.Root == second.Root {
		t.Fatal("roots are equal")
	}

	r := newResolver(t, l, l)
	got, err := r.Get(ctx, w.owner(), "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "212-555-1234" {
		t.Errorf("got %q, want 212-555-1234", got)
	}

	var versions []string
	err = r.History(ctx, w.owner(), "Mobile", func(_ Ref, _ VersionNode, val Blob) error {
		versions = append(versions, string(val))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"212-555-1234", "555-1234"}, versions); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	replica := mem.New()
	res, err := newBuilder(t, l, l).Build(ctx, w.owner(), replica)
	if err != nil {
		t.Fatal(err)
	}
	if res.Root != second.Root {
		t.Errorf("built root %s, want %s", res.Root, second.Root)
	}
	if res.Imported != 2 {
		t.Errorf("imported %d entries, want 2", res.Imported)
	}
	head, err := replica.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != second.Root {
		t.Errorf("replica head %s, want %s", head, second.Root)
	}

	val, node, err := Lookup(ctx, replica, res.Root, "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "212-555-1234" {
		t.Errorf("got %q from replica, want 212-555-1234", val)
	}
	prev, err := LoadVersionNode(ctx, replica, node.Prev)
	if err != nil {
		t.Fatal(err)
	}
	prevVal, err := replica.Get(ctx, prev.Obj)
	if err != nil {
		t.Fatal(err)
	}
	if string(prevVal) != "555-1234" {
		t.Errorf("got previous value %q, want 555-1234", prevVal)
	}
	if !prev.Prev.IsZero() {
		t.Errorf("first version has prev %s", prev.Prev)
	}
}

func TestCarryForward(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	w := newWriter(t, l, 1)

	w.save(ctx, t, map[string]string{"Mobile": "555-1234", "Landline": "555-0000"})
	second := w.save(ctx, t, map[string]string{"Mobile": "212-555-1234"})
	if diff := cmp.Diff([]string{"Mobile"}, second.Changed); diff != "" {
		t.Errorf("changed tags mismatch (-want +got):\n%s", diff)
	}

	r := newResolver(t, l, l)
	got, err := r.Get(ctx, w.owner(), "Landline")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "555-0000" {
		t.Errorf("got %q, want 555-0000", got)
	}

	latest, err := r.Latest(ctx, w.owner())
	if err != nil {
		t.Fatal(err)
	}
	if latest.Root != second.Root {
		t.Errorf("latest root %s, want %s", latest.Root, second.Root)
	}
	if diff := cmp.Diff([]string{"Landline", "Mobile"}, latest.Snapshot.Tags()); diff != "" {
		t.Errorf("latest tags mismatch (-want +got):\n%s", diff)
	}

	replica := mem.New()
	res, err := newBuilder(t, l, l).Build(ctx, w.owner(), replica)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err = Lookup(ctx, replica, res.Root, "Landline")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "555-0000" {
		t.Errorf("got %q from replica, want 555-0000", got)
	}
}

func TestOwnerIsolation(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	a := newWriter(t, l, 1)
	b := newWriter(t, l, 2)

	a.save(ctx, t, map[string]string{"Mobile": "555-1111"})
	b.save(ctx, t, map[string]string{"Mobile": "555-2222", "Email": "b@example.com"})
	a.save(ctx, t, map[string]string{"Mobile": "555-3333"})

	s := newScanner(t, l)
	entries, err := s.Entries(ctx, a.owner())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries for a, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Owner != a.owner() {
			t.Errorf("entry %s has owner %s, want %s", e.ID, e.Owner, a.owner())
		}
	}

	r := newResolver(t, l, l)
	_, err = r.Get(ctx, a.owner(), "Email")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got error %v resolving b's tag in a's history, want ErrNotFound", err)
	}

	got, err := r.Get(ctx, b.owner(), "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "555-2222" {
		t.Errorf("got %q for b, want 555-2222", got)
	}

	replica := mem.New()
	if _, err = newBuilder(t, l, l).Build(ctx, a.owner(), replica); err != nil {
		t.Fatal(err)
	}
	ok, err := Has(ctx, replica, Blob("b@example.com").Ref())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("a's replica contains b's value")
	}
}

func TestUnavailableVersusEmpty(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	w := newWriter(t, l, 1)

	// Unavailable: the only backend is down.
	offline := newScanner(t, failingQuerier{})
	err := offline.Scan(ctx, w.owner(), func(e ledger.Entry) error {
		t.Errorf("unexpected entry %s", e.ID)
		return nil
	})
	if !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("got %v scanning offline, want ErrHistoryUnavailable", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("unavailable history looks like a missing one")
	}

	b, err := NewBuilder(offline, l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = b.Build(ctx, w.owner(), mem.New()); !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("got %v building offline, want ErrHistoryUnavailable", err)
	}

	r, err := NewResolver(offline, l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err = r.Get(ctx, w.owner(), "Mobile"); !errors.Is(err, ErrHistoryUnavailable) {
		t.Errorf("got %v resolving offline, want ErrHistoryUnavailable", err)
	}

	// Empty: the backend is up but the owner never wrote anything.
	online := newScanner(t, l)
	var n int
	err = online.Scan(ctx, w.owner(), func(ledger.Entry) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("got %d entries for empty history", n)
	}

	if _, err = newBuilder(t, l, l).Build(ctx, w.owner(), mem.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v building empty history, want ErrNotFound", err)
	}
	_, err = newResolver(t, l, l).Get(ctx, w.owner(), "Mobile")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v resolving in empty history, want ErrNotFound", err)
	}
	if errors.Is(err, ErrHistoryUnavailable) {
		t.Error("empty history looks like an unavailable one")
	}
}

// Owners sharing one local store write only their own histories.
func TestSharedStore(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	b := newWriter(t, l, 2)

	b.save(ctx, t, map[string]string{"Mobile": "555-1234", "Secret": "b-only"})

	cases := []struct {
		name    string
		before  map[string]string // history written before the shared store is built
		values  map[string]string // saved through the shared store
		wantTag []string
	}{{
		name:    "existing history",
		before:  map[string]string{"Home": "h"},
		values:  map[string]string{"Mobile": "555-1234"},
		wantTag: []string{"Home", "Mobile"},
	}, {
		name:    "new history",
		values:  map[string]string{"Home": "h"},
		wantTag: []string{"Home"},
	}}

	for i, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			owner := newWriter(t, l, byte(10+i))
			if c.before != nil {
				owner.save(ctx, t, c.before)
			}

			shared := mem.New()
			bld := newBuilder(t, l, l)

			var base Ref
			res, err := bld.Build(ctx, owner.owner(), shared)
			switch {
			case errors.Is(err, ErrNotFound):
			case err != nil:
				t.Fatal(err)
			default:
				base = res.Root
			}
			// Built last, so the store's head is b's root.
			if _, err = bld.Build(ctx, b.owner(), shared); err != nil {
				t.Fatal(err)
			}

			pub, err := NewPublisher(owner.key, l)
			if err != nil {
				t.Fatal(err)
			}
			w, err := NewWriter(shared, pub, base)
			if err != nil {
				t.Fatal(err)
			}
			blobs := make(map[string]Blob)
			for tag, val := range c.values {
				blobs[tag] = Blob(val)
			}
			if _, err = w.Save(ctx, blobs); err != nil {
				t.Fatal(err)
			}

			r := newResolver(t, l, l)
			latest, err := r.Latest(ctx, owner.owner())
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(c.wantTag, latest.Snapshot.Tags()); diff != "" {
				t.Errorf("latest snapshot tags mismatch (-want +got):\n%s", diff)
			}

			fresh := mem.New()
			built, err := newBuilder(t, l, l).Build(ctx, owner.owner(), fresh)
			if err != nil {
				t.Fatal(err)
			}
			for tag, want := range c.values {
				got, err := r.Get(ctx, owner.owner(), tag)
				if err != nil {
					t.Fatalf("resolving %s: %s", tag, err)
				}
				if string(got) != want {
					t.Errorf("resolved %s=%q, want %q", tag, got, want)
				}
				got, _, err = Lookup(ctx, fresh, built.Root, tag)
				if err != nil {
					t.Fatalf("looking up %s in a fresh replica: %s", tag, err)
				}
				if string(got) != want {
					t.Errorf("fresh replica has %s=%q, want %q", tag, got, want)
				}
			}
		})
	}
}
