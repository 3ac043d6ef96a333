package lru

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/mem"
	"github.com/bobg/ardag/testutil"
)

func TestLedger(t *testing.T) {
	l, err := New(mem.New(), 100)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Ledger(context.Background(), t, l)
}

type countingLedger struct {
	ledger.Ledger
	fetches int32
}

func (c *countingLedger) Fetch(ctx context.Context, id string) ([]byte, error) {
	atomic.AddInt32(&c.fetches, 1)
	return c.Ledger.Fetch(ctx, id)
}

func TestCache(t *testing.T) {
	ctx := context.Background()

	nested := &countingLedger{Ledger: mem.New()}
	writer, err := New(nested, 10)
	if err != nil {
		t.Fatal(err)
	}
	id, err := testutil.SubmitSigned(ctx, writer, 'a', "payload")
	if err != nil {
		t.Fatal(err)
	}

	// The writer cached the payload at submission.
	if _, err = writer.Fetch(ctx, id); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&nested.fetches); n != 0 {
		t.Errorf("got %d nested fetches after submit, want 0", n)
	}

	// A fresh cache fetches once and then serves from memory.
	reader, err := New(nested, 10)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		got, err := reader.Fetch(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "payload" {
			t.Errorf("got %q, want %q", got, "payload")
		}
	}
	if n := atomic.LoadInt32(&nested.fetches); n != 1 {
		t.Errorf("got %d nested fetches, want 1", n)
	}
}
