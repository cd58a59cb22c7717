/*
Package storage provides a small BoltDB-backed local cache for process
state that must survive a restart but is not the record of truth.

The record of truth for cruises, lowerings, and transfer configuration
is the control plane (see pkg/controlplane); this package exists for
the state that would otherwise be lost on every process start. Its one
user is pkg/sizecacher, which keeps the last-measured byte count of each
cruise and lowering directory so that, after a restart, an unchanged
size is not posted to the control plane again (the directory is still
measured with du on every cycle).

A caller opens its own BoltStore (one file, arbitrary named buckets):

	store, err := storage.NewBoltStore(dataDir, "sizecacher")
	...
	defer store.Close()

	var lastBytes int64
	ok, err := store.Get("sizecacher", cruiseID, &lastBytes)

Values are JSON-encoded; Put upserts, Delete is idempotent, ForEach
streams raw bytes for callers that want to decode into their own type.
*/
package storage
