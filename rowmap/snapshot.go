package rowmap

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot encodes a record's current state. Transaction caches store the
// snapshot next to the interned instance as the baseline for dirty
// tracking.
func Snapshot(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Dirty reports whether a record has drifted from its baseline snapshot.
func Dirty(v any, baseline []byte) (bool, error) {
	cur, err := msgpack.Marshal(v)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(cur, baseline), nil
}
