package ardag_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	. "github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/store/mem"
	"github.com/bobg/ardag/testutil"
)

func TestSave(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	w := newWriter(t, l, 1)

	first := w.save(ctx, t, map[string]string{"Mobile": "1", "Landline": "2"})
	if diff := cmp.Diff([]string{"Landline", "Mobile"}, first.Changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
	if first.Owner != w.owner() {
		t.Errorf("owner %s, want %s", first.Owner, w.owner())
	}

	res, err := w.w.Save(ctx, map[string]Blob{"Mobile": Blob("1"), "Email": Blob("3")}, ledger.Tag{Name: "Content-Type", Value: "text/plain"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Email"}, res.Changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Mobile"}, res.Unchanged); diff != "" {
		t.Errorf("unchanged mismatch (-want +got):\n%s", diff)
	}

	head, err := w.store.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != res.Root {
		t.Errorf("head %s, want %s", head, res.Root)
	}

	page, err := l.Query(ctx, &ledger.Query{Owners: []ledger.Owner{w.owner()}, First: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(page.Entries))
	}
	e := page.Entries[0]
	if e.ID != res.EntryID {
		t.Errorf("newest entry %s, want %s", e.ID, res.EntryID)
	}
	wantTags := []ledger.Tag{
		{Name: TagAppName, Value: AppName},
		{Name: TagRoot, Value: res.Root.String()},
		{Name: TagArchive, Value: res.Archive.String()},
		{Name: "Content-Type", Value: "text/plain"},
	}
	if diff := cmp.Diff(wantTags, e.Tags); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}

	a, err := LoadEntry(ctx, l, e)
	if err != nil {
		t.Fatal(err)
	}
	if a.Root != res.Root {
		t.Errorf("archive root %s, want %s", a.Root, res.Root)
	}

	if _, err = w.w.Save(ctx, map[string]Blob{"Mobile": Blob("1")}); !errors.Is(err, ErrEmptyCommit) {
		t.Errorf("got %v saving nothing new, want ErrEmptyCommit", err)
	}
	page, err = l.Query(ctx, &ledger.Query{Owners: []ledger.Owner{w.owner()}})
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Entries) != 2 {
		t.Errorf("got %d entries after empty commit, want 2", len(page.Entries))
	}
}

func TestSavePublishFailure(t *testing.T) {
	ctx := context.Background()
	l := newLedger()
	good := newWriter(t, l, 1)
	first := good.save(ctx, t, map[string]string{"Mobile": "1"})

	pub, err := NewPublisher(testutil.Key(t, 1), failingSubmitter{})
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(good.store, pub, good.w.Base())
	if err != nil {
		t.Fatal(err)
	}

	before := allRefs(ctx, t, good.store)

	_, err = w.Save(ctx, map[string]Blob{"Mobile": Blob("2")})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("got %v, want ErrPublishFailed", err)
	}
	if !errors.Is(err, ledger.ErrRejected) {
		t.Errorf("got %v, want the submitter's ErrRejected in the chain", err)
	}
	if w.Base() != first.Root {
		t.Errorf("base moved to %s after failed publish", w.Base())
	}

	head, err := good.store.Head(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head != first.Root {
		t.Errorf("head moved to %s after failed publish", head)
	}
	if diff := cmp.Diff(before, allRefs(ctx, t, good.store)); diff != "" {
		t.Errorf("store changed after failed publish (-before +after):\n%s", diff)
	}

	got, err := newResolver(t, l, l).Get(ctx, good.owner(), "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1" {
		t.Errorf("resolved %q, want 1", got)
	}

	// Retrying with a working submitter succeeds on the same base.
	res := good.save(ctx, t, map[string]string{"Mobile": "2"})
	val, node, err := Lookup(ctx, good.store, res.Root, "Mobile")
	if err != nil {
		t.Fatal(err)
	}
	if string(val) != "2" {
		t.Errorf("got %q, want 2", val)
	}
	prev, err := LoadVersionNode(ctx, good.store, node.Prev)
	if err != nil {
		t.Fatal(err)
	}
	if prev.Obj != Blob("1").Ref() {
		t.Errorf("previous version has obj %s, want the first value", prev.Obj)
	}
}

func TestConstructorsRejectNil(t *testing.T) {
	l := newLedger()
	key := testutil.Key(t, 1)

	if _, err := NewPublisher(nil, l); err == nil {
		t.Error("NewPublisher accepted a nil signer")
	}
	if _, err := NewPublisher(key, nil); err == nil {
		t.Error("NewPublisher accepted a nil submitter")
	}
	if _, err := NewScanner(); err == nil {
		t.Error("NewScanner accepted no backends")
	}
	if _, err := NewScanner(l, nil); err == nil {
		t.Error("NewScanner accepted a nil backend")
	}
	if _, err := NewWriter(nil, nil, Zero); err == nil {
		t.Error("NewWriter accepted nil arguments")
	}
	if _, err := NewWriter(mem.New(), nil, Zero); err == nil {
		t.Error("NewWriter accepted a nil publisher")
	}
}
