package weft

import (
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/syssam/weft/compiler"
)

// preparedCache memoizes compiled statement shapes. Two templates with the
// same text and the same value shape compile to byte-identical SQL, so the
// second one is a hash lookup followed by a Bind.
//
// Keys are xxhash digests of text plus shape; each bucket keeps the full
// key material and is compared before reuse, so a digest collision costs a
// recompile, never a wrong statement.
type preparedCache struct {
	mu      sync.RWMutex
	entries map[uint64][]*preparedEntry
}

type preparedEntry struct {
	text  string
	shape string
	c     *compiler.Compiled
}

func newPreparedCache() *preparedCache {
	return &preparedCache{entries: make(map[uint64][]*preparedEntry)}
}

func (pc *preparedCache) compile(tmpl Template, cfg compiler.Config) (*compiler.Compiled, error) {
	text := strings.Join(tmpl.Fragments, "{}")
	shape := compiler.Shape(tmpl.Values...)
	key := pc.key(text, shape)

	pc.mu.RLock()
	for _, e := range pc.entries[key] {
		if e.text == text && e.shape == shape {
			pc.mu.RUnlock()
			return e.c, nil
		}
	}
	pc.mu.RUnlock()

	c, err := compiler.Compile(tmpl, cfg)
	if err != nil {
		return nil, err
	}
	pc.mu.Lock()
	defer pc.mu.Unlock()
	for _, e := range pc.entries[key] {
		// Lost the race; keep the statement that got there first.
		if e.text == text && e.shape == shape {
			return e.c, nil
		}
	}
	pc.entries[key] = append(pc.entries[key], &preparedEntry{text: text, shape: shape, c: c})
	return c, nil
}

func (pc *preparedCache) key(text, shape string) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(text)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(shape)
	return d.Sum64()
}

func (pc *preparedCache) len() int {
	pc.mu.RLock()
	defer pc.mu.RUnlock()
	n := 0
	for _, bucket := range pc.entries {
		n += len(bucket)
	}
	return n
}
