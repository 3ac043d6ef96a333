// Command ardag is a CLI for versioned key/value histories on a ledger.
//
// Usage:
//
//   ardag [-config FILE] SUBCOMMAND [ARGS]
//
// Subcommands are keygen, owner, put, get, history, load, serve, sync, and gc.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	"github.com/bobg/ardag"
	_ "github.com/bobg/ardag/ledger/gateway"
	_ "github.com/bobg/ardag/ledger/logging"
	_ "github.com/bobg/ardag/ledger/lru"
	_ "github.com/bobg/ardag/ledger/mem"
	_ "github.com/bobg/ardag/ledger/sqlite3"
	_ "github.com/bobg/ardag/store/bt"
	_ "github.com/bobg/ardag/store/file"
	_ "github.com/bobg/ardag/store/gcs"
	_ "github.com/bobg/ardag/store/logging"
	_ "github.com/bobg/ardag/store/lru"
	_ "github.com/bobg/ardag/store/mem"
	_ "github.com/bobg/ardag/store/pg"
	_ "github.com/bobg/ardag/store/replica"
	_ "github.com/bobg/ardag/store/sqlite3"
)

type maincmd struct {
	conf *config
}

func main() {
	configFile := flag.String("config", "ardag.json", "path to config file")
	flag.Parse()

	if *configFile == "" {
		log.Fatal("Config value not set")
	}

	conf, err := loadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()

	err = subcmd.Run(ctx, maincmd{conf: conf}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"gc":      c.gc,
		"get":     c.get,
		"history": c.history,
		"keygen":  c.keygen,
		"load":    c.load,
		"owner":   c.owner,
		"put":     c.put,
		"serve":   c.serve,
		"sync":    c.sync,
	}
}

func parseRef(s string) (ardag.Ref, error) {
	if s == "" {
		return ardag.Zero, nil
	}
	return ardag.RefFromHex(s)
}
