// Package fingerprint derives stable request hashes and tracks how often
// each hash has been seen within a session.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/rsclarke/replaycache/internal/normalize"
)

// Fingerprint identifies one logical request within a session.
type Fingerprint struct {
	Hash       string
	Occurrence int
}

// Hash returns the hex-encoded SHA-256 fingerprint of n. Header values are
// not part of the hash.
func Hash(n normalize.NormalizedRequest) string {
	bodySum := sha256.Sum256(n.Body)
	input := "url=" + n.URLNoQuery +
		",query=" + n.QueryString() +
		",body=" + hex.EncodeToString(bodySum[:]) +
		",headersContainAuthentication=" + strconv.FormatBool(n.QueryHasAuth) +
		",method=" + n.Method
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Counter assigns 1-based occurrence numbers per hash. It is not safe for
// concurrent use; the owning session serializes access.
type Counter struct {
	counts map[string]int
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

// Register records one more occurrence of hash and returns its number.
func (c *Counter) Register(hash string) int {
	c.counts[hash]++
	return c.counts[hash]
}

// Unregister rolls back the latest registration of hash.
func (c *Counter) Unregister(hash string) {
	switch n := c.counts[hash]; {
	case n <= 1:
		delete(c.counts, hash)
	default:
		c.counts[hash] = n - 1
	}
}

// Current returns how many times hash has been registered.
func (c *Counter) Current(hash string) int { return c.counts[hash] }

// Reset forgets all occurrences.
func (c *Counter) Reset() { clear(c.counts) }

// Len returns the number of distinct hashes seen.
func (c *Counter) Len() int { return len(c.counts) }
