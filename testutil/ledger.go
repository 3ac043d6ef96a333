package testutil

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/keys"
)

// Ledger exercises a ledger.Ledger implementation:
// submitting, fetching, owner and tag filtering, pagination, and rejection of bad signatures.
// The ledger must be empty.
func Ledger(ctx context.Context, t *testing.T, l ledger.Ledger) {
	var (
		keyA = Key(t, 'a')
		keyB = Key(t, 'b')
	)

	submit := func(k *keys.Key, app, data string) string {
		tx := &ledger.Tx{
			Data: []byte(data),
			Tags: []ledger.Tag{{Name: "App-Name", Value: app}, {Name: "Seq", Value: data}},
		}
		if err := k.Sign(ctx, tx); err != nil {
			t.Fatal(err)
		}
		id, err := l.Submit(ctx, tx)
		if err != nil {
			t.Fatal(err)
		}
		if id != tx.ID {
			t.Fatalf("got id %s, want %s", id, tx.ID)
		}
		return id
	}

	var wantA, wantB []string
	for i := 0; i < 5; i++ {
		wantA = append([]string{submit(keyA, "ArDag", fmt.Sprintf("a%d", i))}, wantA...)
		if i%2 == 0 {
			wantB = append([]string{submit(keyB, "ArDag", fmt.Sprintf("b%d", i))}, wantB...)
		}
	}
	submit(keyA, "Other", "other")

	t.Run("query", func(t *testing.T) {
		for _, c := range []struct {
			name  string
			owner ledger.Owner
			want  []string
		}{
			{"a", keyA.Owner(), wantA},
			{"b", keyB.Owner(), wantB},
			{"nobody", "nobody", nil},
		} {
			t.Run(c.name, func(t *testing.T) {
				var (
					got     []string
					heights []uint64
				)
				q := &ledger.Query{
					Owners: []ledger.Owner{c.owner},
					Tags:   []ledger.TagFilter{{Name: "App-Name", Values: []string{"ArDag"}}},
					First:  2,
				}
				for {
					page, err := l.Query(ctx, q)
					if err != nil {
						t.Fatal(err)
					}
					if len(page.Entries) > q.First {
						t.Fatalf("got %d entries, want at most %d", len(page.Entries), q.First)
					}
					for _, e := range page.Entries {
						if e.Owner != c.owner {
							t.Errorf("entry %s has owner %s, want %s", e.ID, e.Owner, c.owner)
						}
						if v, _ := e.Tag("App-Name"); v != "ArDag" {
							t.Errorf("entry %s has App-Name %q", e.ID, v)
						}
						got = append(got, e.ID)
						heights = append(heights, e.Height)
					}
					if !page.HasMore {
						break
					}
					q.After = page.Cursor
				}
				if diff := cmp.Diff(c.want, got); diff != "" {
					t.Errorf("mismatch (-want +got):\n%s", diff)
				}
				for i := 1; i < len(heights); i++ {
					if heights[i] >= heights[i-1] {
						t.Errorf("heights not descending: %v", heights)
						break
					}
				}
			})
		}
	})

	t.Run("fetch", func(t *testing.T) {
		got, err := l.Fetch(ctx, wantA[0])
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "a4" {
			t.Errorf("got %q, want %q", got, "a4")
		}
		_, err = l.Fetch(ctx, "nonexistent")
		if !errors.Is(err, ledger.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("resubmit", func(t *testing.T) {
		tx := &ledger.Tx{Data: []byte("again")}
		if err := keyB.Sign(ctx, tx); err != nil {
			t.Fatal(err)
		}
		id1, err := l.Submit(ctx, tx)
		if err != nil {
			t.Fatal(err)
		}
		id2, err := l.Submit(ctx, tx)
		if err != nil {
			t.Fatal(err)
		}
		if id1 != id2 {
			t.Errorf("resubmission produced id %s, want %s", id2, id1)
		}
	})

	t.Run("reject", func(t *testing.T) {
		tx := &ledger.Tx{Data: []byte("forged")}
		if err := keyA.Sign(ctx, tx); err != nil {
			t.Fatal(err)
		}
		tx.Data = []byte("tampered")
		_, err := l.Submit(ctx, tx)
		if !errors.Is(err, ledger.ErrRejected) {
			t.Errorf("got %v, want ErrRejected", err)
		}
	})
}

// Key produces the key whose seed is 32 copies of b.
func Key(t *testing.T, b byte) *keys.Key {
	k, err := seedKey(b)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func seedKey(b byte) (*keys.Key, error) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = b
	}
	return keys.FromSeed(seed)
}

// SubmitSigned signs a transaction carrying data and tags
// with the key for seed byte b (see Key)
// and submits it.
func SubmitSigned(ctx context.Context, s ledger.Submitter, b byte, data string, tags ...ledger.Tag) (string, error) {
	k, err := seedKey(b)
	if err != nil {
		return "", err
	}
	tx := &ledger.Tx{Data: []byte(data), Tags: tags}
	if err = k.Sign(ctx, tx); err != nil {
		return "", err
	}
	return s.Submit(ctx, tx)
}
