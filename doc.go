// Package ardag is a versioned, content-addressed key/value store
// whose history lives on an append-only public ledger.
//
// Values are blobs,
// indexed by their hash,
// which is called the blob’s reference, or _ref_.
// This module uses sha2-256.
//
// Each tag (a key) has a chain of version nodes,
// newest first,
// each pointing to one value and to the node before it.
// A snapshot maps every tag to the latest node in its chain,
// and the ref of a snapshot’s encoding is its root id.
// Because everything is addressed by content,
// equal snapshots always have equal root ids.
//
// Changes are staged on top of a base snapshot (see Stage)
// and committed together into an Archive:
// the new snapshot’s root node plus the blocks introduced by the commit.
// Blocks already published in earlier archives are referenced but not repeated.
//
// A Publisher appends each archive to the ledger as an entry
// signed by the owner and tagged for discovery.
// The sequence of entries by one owner is that owner’s history.
// A Scanner enumerates it through one or more query backends.
// A Builder imports all of it into a local Store.
// A Resolver answers queries from it directly,
// decoding only as many entries as it needs.
//
// A Writer ties the write path together.
// It records a new root locally only after its archive is published.
//
// Stores are in subpackages of store,
// and ledgers are in subpackages of ledger.
package ardag
