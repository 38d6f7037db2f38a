// Package keypool manages a pool of provider API credentials.
//
// Keys are loaded once from the environment (GEMINI_API_KEY plus numbered
// variants GEMINI_API_KEY_2, GEMINI_API_KEY_3, ...), shuffled at load time so
// restarts do not always hit the same key first, and served by uniform random
// choice. Random selection rather than strict round-robin statistically
// balances load across concurrent callers without a shared mutable cursor.
package keypool

import (
	"errors"
	"math/rand/v2"
	"os"
	"strconv"
)

// ErrNoKeys indicates the pool holds no credentials.
var ErrNoKeys = errors.New("no API keys available")

// Pool holds a fixed set of credentials. The key slice is immutable after
// construction, so Next is safe for concurrent use without locking.
type Pool struct {
	keys []string
}

// FromEnv loads the pool from GEMINI_API_KEY and GEMINI_API_KEY_2, _3, ...
// The numbered scan stops at the first gap.
func FromEnv() *Pool {
	var keys []string
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		keys = append(keys, k)
	}
	for i := 2; ; i++ {
		k := os.Getenv("GEMINI_API_KEY_" + strconv.Itoa(i))
		if k == "" {
			break
		}
		keys = append(keys, k)
	}
	return New(keys)
}

// New creates a pool from the given keys. The slice is copied and shuffled.
func New(keys []string) *Pool {
	cp := make([]string, len(keys))
	copy(cp, keys)
	rand.Shuffle(len(cp), func(i, j int) {
		cp[i], cp[j] = cp[j], cp[i]
	})
	return &Pool{keys: cp}
}

// Next returns a credential chosen uniformly at random.
func (p *Pool) Next() (string, error) {
	if len(p.keys) == 0 {
		return "", ErrNoKeys
	}
	return p.keys[rand.IntN(len(p.keys))], nil
}

// Len reports the number of credentials in the pool.
func (p *Pool) Len() int {
	return len(p.keys)
}
