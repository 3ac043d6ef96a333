package bt

import (
	"context"
	"fmt"
	"testing"

	"cloud.google.com/go/bigtable"
	"cloud.google.com/go/bigtable/bttest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/testutil"
)

const (
	project  = "ardag-test"
	instance = "ardag-test"
)

// Starts an in-memory Bigtable server
// and returns a function producing a Store on a fresh table each time it is called.
func newTestServer(ctx context.Context, t *testing.T) func() *Store {
	srv, err := bttest.NewServer("localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	admin, err := bigtable.NewAdminClient(ctx, project, instance, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}
	client, err := bigtable.NewClient(ctx, project, instance, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}

	var n int
	return func() *Store {
		n++
		table := fmt.Sprintf("blobs%d", n)
		if err := admin.CreateTable(ctx, table); err != nil {
			t.Fatal(err)
		}
		for _, fam := range []string{BlobFamily, HeadFamily} {
			if err := admin.CreateColumnFamily(ctx, table, fam); err != nil {
				t.Fatal(err)
			}
		}
		return New(client.Open(table))
	}
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	newStore := newTestServer(ctx, t)

	t.Run("readwrite", func(t *testing.T) {
		testutil.ReadWrite(ctx, t, newStore())
	})
	t.Run("multi", func(t *testing.T) {
		testutil.Multi(ctx, t, newStore())
	})
	t.Run("head", func(t *testing.T) {
		testutil.Head(ctx, t, newStore())
	})
	t.Run("allrefs", func(t *testing.T) {
		testutil.AllRefs(ctx, t, func() ardag.Store { return newStore() })
	})
}
