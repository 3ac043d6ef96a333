package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger/gateway"
)

// Serves the configured ledger over the gateway protocol.
// With a sqlite3 ledger this is a local development gateway.
func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	addr := fs.String("addr", ":1984", "address to listen on")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	l, err := c.conf.ledger(ctx)
	if err != nil {
		return err
	}
	h := gateway.NewHandler(l)
	h.Logf = log.Printf

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}
	defer lis.Close()

	fmt.Printf("Listening on %s\n", lis.Addr())

	srv := &http.Server{Handler: h}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	return srv.Serve(lis)
}
