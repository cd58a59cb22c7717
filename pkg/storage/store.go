package storage

// Store is a generic local cache: a set of named buckets holding
// JSON-serialized values under string keys. It backs process-local
// state that must survive a restart without round-tripping through the
// control plane; today that is the directory sizes measured by the
// size cacher.
//
// It is not a record of truth for cruise or transfer configuration;
// that lives behind pkg/controlplane.
type Store interface {
	// Put serializes value as JSON and writes it to bucket under key,
	// creating the bucket if it does not already exist.
	Put(bucket, key string, value any) error

	// Get deserializes the value stored at bucket/key into out. It
	// returns ok=false (and a nil error) when the key is absent.
	Get(bucket, key string, out any) (ok bool, err error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(bucket, key string) error

	// ForEach calls fn with the raw JSON bytes of every value in bucket,
	// in key order. fn must not retain the byte slice past the call.
	ForEach(bucket string, fn func(key string, value []byte) error) error

	// Close releases the underlying database file.
	Close() error
}
