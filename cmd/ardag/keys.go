package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ardag/ledger/keys"
)

func (c maincmd) keygen(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		out   = fs.String("out", "", "file to write the new key to (default: the configured key file)")
		force = fs.Bool("force", false, "overwrite an existing key file")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	filename := *out
	if filename == "" {
		filename = c.conf.Key
	}
	if filename == "" {
		return errors.New("must supply -out or a configured key file")
	}
	if !*force {
		if _, err = os.Stat(filename); err == nil {
			return errors.Errorf("%s exists (use -force to overwrite)", filename)
		}
	}

	k, err := keys.Generate()
	if err != nil {
		return errors.Wrap(err, "generating key")
	}
	if err = k.Save(filename); err != nil {
		return err
	}

	fmt.Println(k.Owner())
	return nil
}

func (c maincmd) owner(ctx context.Context, fs *flag.FlagSet, args []string) error {
	keyfile := fs.String("key", "", "key file (default: the configured key file)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	k, err := c.conf.key(*keyfile)
	if err != nil {
		return err
	}
	fmt.Println(k.Owner())
	return nil
}
