package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
)

func (c maincmd) resolver(ctx context.Context) (*ardag.Resolver, error) {
	l, err := c.conf.ledger(ctx)
	if err != nil {
		return nil, err
	}
	scanner, err := c.conf.scanner(l)
	if err != nil {
		return nil, err
	}
	return ardag.NewResolver(scanner, l)
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		ownerName = fs.String("owner", "", "owner whose history to read (default: the holder of the configured key)")
		keyfile   = fs.String("key", "", "key file (default: the configured key file)")
		pinned    = fs.String("ref", "", "hex ref of a specific value to get")
		local     = fs.Bool("local", false, "read from the store's head instead of the ledger")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() > 1 {
		return errors.New("usage: get [flags] [TAG]")
	}

	pin, err := parseRef(*pinned)
	if err != nil {
		return errors.Wrapf(err, "parsing -ref %s", *pinned)
	}
	q := ardag.Query{Tag: fs.Arg(0), Pinned: pin}

	if *local {
		return c.getLocal(ctx, q)
	}

	owner, err := c.conf.owner(*ownerName, *keyfile)
	if err != nil {
		return err
	}
	r, err := c.resolver(ctx)
	if err != nil {
		return err
	}
	res, err := r.Resolve(ctx, owner, q)
	if err != nil {
		return err
	}
	if q.Tag == "" && q.Pinned.IsZero() {
		return printSnapshot(ctx, res.Root, res.Snapshot, nil)
	}
	_, err = os.Stdout.Write(res.Value)
	return errors.Wrap(err, "writing value to stdout")
}

func (c maincmd) getLocal(ctx context.Context, q ardag.Query) error {
	s, err := c.conf.store(ctx)
	if err != nil {
		return err
	}

	var val ardag.Blob
	switch {
	case !q.Pinned.IsZero():
		val, err = s.Get(ctx, q.Pinned)
		if err != nil {
			return errors.Wrapf(err, "getting %s", q.Pinned)
		}

	default:
		head, err := s.Head(ctx)
		if err != nil {
			return errors.Wrap(err, "getting head")
		}
		if head.IsZero() {
			return errors.Wrap(ardag.ErrNotFound, "store has no head (try load)")
		}
		if q.Tag == "" {
			snap, err := ardag.LoadSnapshot(ctx, s, head)
			if err != nil {
				return errors.Wrapf(err, "loading snapshot %s", head)
			}
			return printSnapshot(ctx, head, snap, s)
		}
		val, _, err = ardag.Lookup(ctx, s, head, q.Tag)
		if err != nil {
			return errors.Wrapf(err, "looking up %s", q.Tag)
		}
	}

	_, err = os.Stdout.Write(val)
	return errors.Wrap(err, "writing value to stdout")
}

// Prints the tags of snap with their version nodes,
// and with their value refs if g is present.
func printSnapshot(ctx context.Context, root ardag.Ref, snap ardag.Snapshot, g ardag.Getter) error {
	fmt.Printf("root %s\n", root)
	for _, tag := range snap.Tags() {
		if g == nil {
			fmt.Printf("%s %s\n", snap[tag], tag)
			continue
		}
		node, err := ardag.LoadVersionNode(ctx, g, snap[tag])
		if err != nil {
			return errors.Wrapf(err, "loading version node for %s", tag)
		}
		fmt.Printf("%s %s %s\n", snap[tag], node.Obj, tag)
	}
	return nil
}

func (c maincmd) history(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		ownerName = fs.String("owner", "", "owner whose history to read (default: the holder of the configured key)")
		keyfile   = fs.String("key", "", "key file (default: the configured key file)")
		limit     = fs.Int("n", 0, "show at most this many versions (0 means all)")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() != 1 {
		return errors.New("usage: history [flags] TAG")
	}
	tag := fs.Arg(0)

	owner, err := c.conf.owner(*ownerName, *keyfile)
	if err != nil {
		return err
	}
	r, err := c.resolver(ctx)
	if err != nil {
		return err
	}

	errLimit := errors.New("limit reached")
	var n int
	err = r.History(ctx, owner, tag, func(ref ardag.Ref, node ardag.VersionNode, val ardag.Blob) error {
		fmt.Printf("%s %s %q\n", ref, node.Obj, val)
		n++
		if *limit > 0 && n >= *limit {
			return errLimit
		}
		return nil
	})
	if err == errLimit {
		return nil
	}
	return err
}
