package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/store"
)

// Copies blobs among the configured store and the stores in the named config files,
// until each holds the union.
func (c maincmd) sync(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("usage: sync STORECONFIG ...")
	}

	s, err := c.conf.store(ctx)
	if err != nil {
		return err
	}
	stores := []ardag.Store{s}
	for _, arg := range fs.Args() {
		s, err := storeFromConfig(ctx, arg)
		if err != nil {
			return errors.Wrapf(err, "reading %s", arg)
		}
		stores = append(stores, s)
	}

	return store.Sync(ctx, stores)
}

// Reads a file holding just a store config.
func storeFromConfig(ctx context.Context, filename string) (ardag.Store, error) {
	var conf map[string]interface{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	err = json.NewDecoder(f).Decode(&conf)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}

	return store.FromConfig(ctx, conf)
}
