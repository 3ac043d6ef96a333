package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/gc"
)

// Deletes blobs in the configured store not reachable from its head
// or from the roots given as arguments.
func (c maincmd) gc(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	s, err := c.conf.store(ctx)
	if err != nil {
		return err
	}
	ds, ok := s.(gc.Store)
	if !ok {
		return errors.Errorf("store type %T does not support deletion", s)
	}

	head, err := s.Head(ctx)
	if err != nil {
		return errors.Wrap(err, "getting head")
	}
	roots := []ardag.Ref{head}
	for _, arg := range fs.Args() {
		ref, err := parseRef(arg)
		if err != nil {
			return errors.Wrapf(err, "parsing root %s", arg)
		}
		roots = append(roots, ref)
	}

	k := gc.NewMemKeep()
	for _, root := range roots {
		if root.IsZero() {
			continue
		}
		if err = gc.AddSnapshot(ctx, k, s, root); err != nil {
			return err
		}
	}

	n, err := gc.Run(ctx, ds, k)
	if err != nil {
		return err
	}
	fmt.Printf("Kept %d blobs, deleted %d\n", k.Len(), n)
	return nil
}
