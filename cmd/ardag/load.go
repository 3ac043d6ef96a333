package main

import (
	"context"
	"flag"
	"log"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
)

func (c maincmd) load(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		ownerName = fs.String("owner", "", "owner whose history to load (default: the holder of the configured key)")
		keyfile   = fs.String("key", "", "key file (default: the configured key file)")
		conc      = fs.Int("c", ardag.DefaultConcurrency, "number of entries to fetch at once")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	owner, err := c.conf.owner(*ownerName, *keyfile)
	if err != nil {
		return err
	}
	s, err := c.conf.store(ctx)
	if err != nil {
		return err
	}
	l, err := c.conf.ledger(ctx)
	if err != nil {
		return err
	}

	res, err := c.build(ctx, owner, s, l, *conc)
	if res != nil {
		log.Printf("root %s from entry %s (imported %d, skipped %d, %d new blocks)", res.Root, res.Entry.ID, res.Imported, res.Skipped, res.Blocks)
	}
	return err
}

func (c maincmd) build(ctx context.Context, owner ledger.Owner, s ardag.Store, l ledger.Ledger, conc int) (*ardag.BuildResult, error) {
	scanner, err := c.conf.scanner(l)
	if err != nil {
		return nil, err
	}
	b, err := ardag.NewBuilder(scanner, l)
	if err != nil {
		return nil, err
	}
	b.Concurrency = conc
	return b.Build(ctx, owner, s)
}
