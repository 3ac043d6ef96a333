package keys

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bobg/ardag/ledger"
)

func TestSignVerify(t *testing.T) {
	ctx := context.Background()

	k, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	tx := &ledger.Tx{
		Data: []byte("hello"),
		Tags: []ledger.Tag{{Name: "App-Name", Value: "ArDag"}},
	}
	if err = k.Sign(ctx, tx); err != nil {
		t.Fatal(err)
	}
	if tx.Owner != k.Owner() {
		t.Errorf("got owner %s, want %s", tx.Owner, k.Owner())
	}
	if err = Verify(tx); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		mutate func(*ledger.Tx)
	}{
		{"data", func(tx *ledger.Tx) { tx.Data = []byte("goodbye") }},
		{"tag", func(tx *ledger.Tx) { tx.Tags[0].Value = "Other" }},
		{"extra_tag", func(tx *ledger.Tx) { tx.Tags = append(tx.Tags, ledger.Tag{Name: "x", Value: "y"}) }},
		{"owner", func(tx *ledger.Tx) { tx.Owner = "someone" }},
		{"id", func(tx *ledger.Tx) { tx.ID = "xyz" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			tx2 := *tx
			tx2.Tags = append([]ledger.Tag(nil), tx.Tags...)
			c.mutate(&tx2)
			if err := Verify(&tx2); !errors.Is(err, ledger.ErrBadSignature) {
				t.Errorf("got %v, want ErrBadSignature", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	k, err := FromSeed(make([]byte, 32))
	if err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(t.TempDir(), "wallet.json")
	if err = k.Save(filename); err != nil {
		t.Fatal(err)
	}
	k2, err := Load(filename)
	if err != nil {
		t.Fatal(err)
	}
	if k2.Owner() != k.Owner() {
		t.Errorf("got owner %s, want %s", k2.Owner(), k.Owner())
	}
}

func TestOwnerIsStable(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")
	k1, err := FromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	k2, err := FromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if k1.Owner() != k2.Owner() {
		t.Errorf("owners differ: %s vs %s", k1.Owner(), k2.Owner())
	}
}
