package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/bobg/ardag"
	"github.com/bobg/ardag/ledger"
	"github.com/bobg/ardag/ledger/gateway"
	"github.com/bobg/ardag/ledger/keys"
	"github.com/bobg/ardag/store"
)

// The contents of the config file.
// Store and Ledger are passed to the store and ledger registries.
// Each of Fallbacks is the URL of a gateway
// queried when the primary ledger cannot answer.
type config struct {
	Store     map[string]interface{} `json:"store"`
	Ledger    map[string]interface{} `json:"ledger"`
	Fallbacks []string               `json:"fallbacks"`
	Key       string                 `json:"key"`
	Timeout   string                 `json:"timeout"`
}

// A missing config file is the same as an empty one.
func loadConfig(filename string) (*config, error) {
	conf := new(config)
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return conf, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	if err = json.NewDecoder(f).Decode(conf); err != nil {
		return nil, errors.Wrapf(err, "decoding config file %s", filename)
	}
	return conf, nil
}

func (c *config) store(ctx context.Context) (ardag.HeadStore, error) {
	if c.Store == nil {
		return nil, errors.New("config has no `store` section")
	}
	s, err := store.FromConfig(ctx, c.Store)
	if err != nil {
		return nil, errors.Wrap(err, "creating store")
	}
	hs, ok := s.(ardag.HeadStore)
	if !ok {
		return nil, errors.Errorf("%T store does not keep a head", s)
	}
	return hs, nil
}

func (c *config) ledger(ctx context.Context) (ledger.Ledger, error) {
	if c.Ledger == nil {
		return nil, errors.New("config has no `ledger` section")
	}
	l, err := ledger.FromConfig(ctx, c.Ledger)
	return l, errors.Wrap(err, "creating ledger")
}

func (c *config) timeout() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	return d, errors.Wrapf(err, "parsing timeout %s", c.Timeout)
}

// Produces a Scanner querying l first and then each fallback gateway.
func (c *config) scanner(l ledger.Ledger) (*ardag.Scanner, error) {
	d, err := c.timeout()
	if err != nil {
		return nil, err
	}
	backends := []ledger.Querier{l}
	for _, url := range c.Fallbacks {
		backends = append(backends, gateway.New(url, &http.Client{Timeout: d}))
	}
	s, err := ardag.NewScanner(backends...)
	if err != nil {
		return nil, err
	}
	s.Timeout = d
	return s, nil
}

func (c *config) key(filename string) (*keys.Key, error) {
	if filename == "" {
		filename = c.Key
	}
	if filename == "" {
		return nil, errors.New("no key file given on the command line or in the config")
	}
	return keys.Load(filename)
}

// The owner whose history to read:
// the one named on the command line,
// or else the holder of the configured key.
func (c *config) owner(name, keyfile string) (ledger.Owner, error) {
	if name != "" {
		return ledger.Owner(name), nil
	}
	k, err := c.key(keyfile)
	if err != nil {
		return "", errors.Wrap(err, "finding owner (no -owner given)")
	}
	return k.Owner(), nil
}
