package main

import (
	"context"
	"encoding/json"
	"flag"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
)

// Repeatable NAME=VALUE flag.
type tagList []ledger.Tag

func (t *tagList) String() string {
	var strs []string
	for _, tag := range *t {
		strs = append(strs, tag.Name+"="+tag.Value)
	}
	return strings.Join(strs, ",")
}

func (t *tagList) Set(s string) error {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return errors.Errorf("tag %q is not NAME=VALUE", s)
	}
	*t = append(*t, ledger.Tag{Name: parts[0], Value: parts[1]})
	return nil
}

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		keyfile   = fs.String("key", "", "key file (default: the configured key file)")
		isJSON    = fs.Bool("json", false, "values are JSON; objects are merged into the current ones")
		overwrite = fs.Bool("overwrite", false, "with -json, replace objects instead of merging")
		nosync    = fs.Bool("nosync", false, "do not load the ledger history first; build on the store's head as is")
		extra     tagList
	)
	fs.Var(&extra, "tag", "extra ledger tag NAME=VALUE (repeatable)")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if fs.NArg() == 0 {
		return errors.New("usage: put [flags] TAG=VALUE ... (VALUE - reads stdin)")
	}

	k, err := c.conf.key(*keyfile)
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

	// The base must come from this owner's history.
	// The store's head may belong to another owner loaded into the same store.
	var base ardag.Ref
	if *nosync {
		base, err = s.Head(ctx)
		if err != nil {
			return errors.Wrap(err, "getting head")
		}
	} else {
		res, err := c.build(ctx, k.Owner(), s, l, ardag.DefaultConcurrency)
		switch {
		case errors.Is(err, ardag.ErrNotFound):
			// New history.
		case errors.Is(err, ardag.ErrHistoryIncomplete) && res != nil:
			log.Printf("Warning: %s", err)
			base = res.Root
		case err != nil:
			return errors.Wrap(err, "loading history (use -nosync to write from the store as is)")
		default:
			base = res.Root
		}
	}

	values, err := parseValues(fs.Args())
	if err != nil {
		return err
	}

	if *isJSON {
		for tag, val := range values {
			var cur ardag.Blob
			if !*overwrite && !base.IsZero() {
				cur, _, err = ardag.Lookup(ctx, s, base, tag)
				if err != nil && !errors.Is(err, ardag.ErrNotFound) {
					return errors.Wrapf(err, "getting current value of %s", tag)
				}
			}
			merged, err := mergeJSON(cur, val)
			if err != nil {
				return errors.Wrapf(err, "value of %s", tag)
			}
			values[tag] = merged
		}
	}

	pub, err := ardag.NewPublisher(k, l)
	if err != nil {
		return err
	}
	w, err := ardag.NewWriter(s, pub, base)
	if err != nil {
		return err
	}
	res, err := w.Save(ctx, values, extra...)
	if errors.Is(err, ardag.ErrEmptyCommit) {
		log.Print("No changes")
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("entry %s, root %s, archive %s", res.EntryID, res.Root, res.Archive)
	if len(res.Unchanged) > 0 {
		log.Printf("unchanged: %s", strings.Join(res.Unchanged, ", "))
	}
	return nil
}

func parseValues(args []string) (map[string]ardag.Blob, error) {
	var (
		values    = make(map[string]ardag.Blob)
		readStdin bool
	)
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, errors.Errorf("argument %q is not TAG=VALUE", arg)
		}
		tag, val := parts[0], parts[1]
		if _, ok := values[tag]; ok {
			return nil, errors.Errorf("tag %s given twice", tag)
		}
		if val == "-" {
			if readStdin {
				return nil, errors.New("only one value can come from stdin")
			}
			readStdin = true
			b, err := ioutil.ReadAll(os.Stdin)
			if err != nil {
				return nil, errors.Wrap(err, "reading stdin")
			}
			values[tag] = b
			continue
		}
		values[tag] = ardag.Blob(val)
	}
	return values, nil
}

// Parses val as JSON.
// If it and cur are both objects,
// the result is cur with val's members added or replaced.
// Otherwise it is val.
// Either way the result is in canonical form.
func mergeJSON(cur, val ardag.Blob) (ardag.Blob, error) {
	var v interface{}
	if err := json.Unmarshal(val, &v); err != nil {
		return nil, errors.Wrap(err, "parsing JSON")
	}
	obj, ok := v.(map[string]interface{})
	if !ok || len(cur) == 0 {
		return ardag.EncodeJSON(v)
	}
	var old map[string]interface{}
	if err := json.Unmarshal(cur, &old); err != nil || old == nil {
		// Not an object.
		return ardag.EncodeJSON(v)
	}
	for k, member := range obj {
		old[k] = member
	}
	return ardag.EncodeJSON(old)
}
