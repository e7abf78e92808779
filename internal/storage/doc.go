// Package storage holds the key-value state a worker node keeps on behalf of
// exec requests.
//
// Keys are strings and values are integers, matching the exec command
// surface:
//
//	exec 2 answer 42   ->  Put("answer", 42) on node 2
//	exec 2 answer      ->  Get("answer") on node 2
//
// MemoryStore is the only backend. State lives as long as the worker process
// and is never persisted.
package storage
